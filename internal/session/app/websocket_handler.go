package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	eventapp "live_session_service/internal/eventbus/app"
	eventdomain "live_session_service/internal/eventbus/domain"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/internal/session/domain"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	outBuffer    = 64
)

// SessionWebsocketHandler 每個連線一個 room session
type SessionWebsocketHandler struct {
	coord     *Coordinator
	rate      config.RateLimitConfig
	dedupSize int
}

// NewSessionWebsocketHandler create SessionWebsocketHandler
func NewSessionWebsocketHandler(coord *Coordinator, rl config.RateLimitConfig, dedupSize int) *SessionWebsocketHandler {
	return &SessionWebsocketHandler{coord: coord, rate: rl, dedupSize: dedupSize}
}

// session state of one websocket connection
type session struct {
	h       *SessionWebsocketHandler
	caller  middlewares.Caller
	roomID  string
	hostID  string
	out     chan domain.WSResponse
	replica *eventapp.Replica
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	ready    bool
	admitted bool
	pending  []eventdomain.SessionEvent
	closing  bool
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *SessionWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	caller, ok := middlewares.CallerFromLookup(func(key string) interface{} { return conn.Locals(key) })
	roomID := conn.Query("room")
	if !ok || roomID == "" {
		writeAndClose(conn, domain.WSResponse{Action: string(domain.ErrorPush), Code: string(errprocess.CodeForbidden), Error: "missing identity or room"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 被 ban 的使用者直接回錯誤並斷線
	room, rec, err := h.admit(ctx, caller.MemberID, roomID, conn.Query("passcode"))
	if err != nil {
		writeAndClose(conn, errorResponse(string(domain.ErrorPush), err))
		return
	}

	admitted := room.IsHost(caller.MemberID) || rec.Approved()
	s := &session{
		h:        h,
		caller:   caller,
		roomID:   roomID,
		hostID:   room.HostID,
		out:      make(chan domain.WSResponse, outBuffer),
		replica:  eventapp.NewReplica(h.dedupSize),
		ctx:      ctx,
		cancel:   cancel,
		admitted: admitted,
	}
	if h.rate.PerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(h.rate.PerSecond), max(h.rate.Burst, 1))
	}

	h.coord.Metrics.ConnOpened()
	logger.Log.Info("websocket open", zap.String("member_id", caller.MemberID), zap.String("room_id", roomID))
	if _, err := h.coord.Rooms.Enter(ctx, caller.MemberID, roomID); err != nil {
		logger.Log.Warn("count viewer", zap.String("room_id", roomID), zap.Error(err))
	}
	defer func() {
		// 連線結束時 ctx 已取消, 改用新的 context 扣除觀看人數
		if _, err := h.coord.Rooms.Leave(context.Background(), caller.MemberID, roomID); err != nil {
			logger.Log.Debug("uncount viewer", zap.String("room_id", roomID), zap.Error(err))
		}
		h.coord.Metrics.ConnClosed()
		logger.Log.Info("websocket close", zap.String("member_id", caller.MemberID), zap.String("room_id", roomID))
	}()

	writerDone := make(chan struct{})
	go s.writeLoop(ctx, conn, writerDone)

	if err := h.coord.Bus.Subscribe(ctx, roomID, s.onEvent, s.onLost); err != nil {
		logger.Log.Error("subscribe room", zap.String("room_id", roomID), zap.Error(err))
		s.send(errorResponse(string(domain.ErrorPush), err))
		s.close()
		<-writerDone
		return
	}
	if admitted {
		s.resync(ctx, string(domain.SnapshotPush), "")
	} else {
		s.awaitApproval(rec)
	}

	s.readLoop(ctx, conn)
	s.close()
	<-writerDone
}

// admit moderation check plus membership request. Banned users are refused,
// everyone else gets their record back, possibly still pending.
func (h *SessionWebsocketHandler) admit(ctx context.Context, memberID, roomID, passcode string) (*roomdomain.Room, *roomdomain.ModerationRecord, error) {
	room, err := h.coord.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if err := h.coord.Moderation.Check(ctx, roomID, memberID, roomdomain.ActionJoin); err != nil {
		return nil, nil, err
	}
	rec, err := h.coord.Moderation.RequestJoin(ctx, memberID, roomID, passcode)
	if err != nil {
		return nil, nil, err
	}
	return room, rec, nil
}

// awaitApproval a pending member only follows their own moderation stream
// until the host decides
func (s *session) awaitApproval(rec *roomdomain.ModerationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream := eventdomain.StreamModeration(s.caller.MemberID)
	s.replica.Reset([]eventdomain.StreamVersion{{Stream: stream, Version: rec.Version}})
	s.send(domain.WSResponse{Action: string(domain.MembershipPush), Success: true, Payload: rec.View()})
	s.releaseLocked()
}

func (s *session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("member_id", s.caller.MemberID), zap.Error(err))
			} else if !s.isClosing() {
				logger.Log.Warn("websocket read error", zap.String("member_id", s.caller.MemberID), zap.Error(err))
			}
			return
		}
		if s.isClosing() {
			return
		}
		if mt != websocket.TextMessage {
			s.send(domain.WSResponse{Action: string(domain.ErrorPush), Code: string(errprocess.CodeInvalidRoomState), Error: "only text frames are supported"})
			continue
		}
		s.handleText(ctx, message)
	}
}

func (s *session) handleText(ctx context.Context, message []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		s.send(domain.WSResponse{Action: string(domain.ErrorPush), Code: string(errprocess.CodeInvalidRoomState), Error: "malformed request"})
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.h.coord.Metrics.Intent(req.Action, string(errprocess.CodeRateLimited))
		s.send(errorResponse(req.Action, errprocess.ErrRateLimited))
		return
	}

	if domain.Action(req.Action) == domain.Resync {
		s.resync(ctx, req.Action, req.RequestID)
		return
	}
	s.send(s.h.coord.Execute(ctx, s.caller, s.roomID, req))
}

// resync send an authoritative snapshot and restart the replica from it.
// Events received meanwhile are buffered and replayed against the new versions.
func (s *session) resync(ctx context.Context, action, requestID string) {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	snap, err := s.h.coord.Snapshot(ctx, s.roomID, s.caller.MemberID)
	if err != nil {
		resp := errorResponse(action, err)
		resp.RequestID = requestID
		s.mu.Lock()
		defer s.mu.Unlock()
		s.send(resp)
		if errprocess.CodeOf(err) == errprocess.CodeRoomNotFound {
			s.closeLocked()
			return
		}
		// 沒拿到 snapshot, 沿用原本的 replica 繼續轉送
		s.releaseLocked()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replica.Reset(snap.Versions)
	s.send(domain.WSResponse{Action: action, RequestID: requestID, Success: true, Payload: snap})
	s.releaseLocked()
}

// releaseLocked resume live forwarding and replay what was buffered meanwhile
func (s *session) releaseLocked() {
	s.ready = true
	pending := s.pending
	s.pending = nil
	for _, ev := range pending {
		s.forwardLocked(ev)
	}
}

func (s *session) onEvent(ev eventdomain.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.pending = append(s.pending, ev)
		return
	}
	s.forwardLocked(ev)
}

func (s *session) onLost() {
	logger.Log.Warn("room subscription lost", zap.String("room_id", s.roomID), zap.String("member_id", s.caller.MemberID))
	s.send(domain.WSResponse{Action: string(domain.ErrorPush), Code: "resync", Error: "connection to the room was interrupted, please reconnect"})
	s.close()
}

func (s *session) forwardLocked(ev eventdomain.SessionEvent) {
	own := ev.Stream == eventdomain.StreamModeration(s.caller.MemberID)
	if !s.admitted && !own && ev.Kind != eventdomain.KindRoomEnded {
		return
	}
	if !s.visible(ev) || !s.replica.Apply(ev) {
		return
	}
	s.send(domain.WSResponse{Action: string(domain.EventPush), Success: true, Payload: ev})

	switch {
	case ev.Kind == eventdomain.KindRoomEnded:
		s.closeLocked()
	case own:
		var view roomdomain.ModerationView
		if err := json.Unmarshal(ev.Payload, &view); err != nil {
			return
		}
		switch {
		case view.IsBanned || view.Removed:
			// ban 立即生效, 送出事件後斷線
			s.closeLocked()
		case !s.admitted && view.MembershipStatus == roomdomain.MembershipApproved:
			// 核准後才送出完整 snapshot, 期間的事件先暫存
			s.admitted = true
			s.ready = false
			go s.resync(s.ctx, string(domain.SnapshotPush), "")
		}
	}
}

// visible moderation streams only reach their subject and the host
func (s *session) visible(ev eventdomain.SessionEvent) bool {
	if !strings.HasPrefix(ev.Stream, eventdomain.StreamModeration("")) {
		return true
	}
	return s.caller.MemberID == s.hostID || ev.Stream == eventdomain.StreamModeration(s.caller.MemberID)
}

func (s *session) send(resp domain.WSResponse) {
	select {
	case s.out <- resp:
	default:
		// 寫入端跟不上, 視為慢速客戶端直接斷線
		logger.Log.Warn("slow websocket client, closing", zap.String("member_id", s.caller.MemberID))
		go s.close()
	}
}

func (s *session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *session) closeLocked() {
	if s.closing {
		return
	}
	s.closing = true
	s.cancel()
}

// writeLoop 唯一的寫入 goroutine, 同時負責定期 ping
func (s *session) writeLoop(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
		close(done)
	}()

	for {
		select {
		case resp := <-s.out:
			if err := writeJSON(conn, resp); err != nil {
				logger.Log.Warn("write message error", zap.String("member_id", s.caller.MemberID), zap.Error(err))
				s.close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Log.Debug("ping error", zap.String("member_id", s.caller.MemberID), zap.Error(err))
				s.close()
				return
			}
		case <-ctx.Done():
			// 把已排入的回應送完再關閉
			for {
				select {
				case resp := <-s.out:
					_ = writeJSON(conn, resp)
				default:
					return
				}
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, resp domain.WSResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func writeAndClose(conn *websocket.Conn, resp domain.WSResponse) {
	if err := writeJSON(conn, resp); err != nil {
		logger.Log.Debug("write error before close", zap.Error(err))
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, resp.Error), time.Now().Add(writeWait))
	conn.Close()
}

func errorResponse(action string, err error) domain.WSResponse {
	return domain.WSResponse{Action: action, Code: string(errprocess.CodeOf(err)), Error: errprocess.Reason(err)}
}
