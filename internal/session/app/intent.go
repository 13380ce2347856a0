package app

import (
	"context"

	giftdomain "live_session_service/internal/gift/domain"
	"live_session_service/internal/session/domain"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/middlewares"

	"go.uber.org/zap"
)

var errUnknownAction = errprocess.New(errprocess.CodeInvalidRoomState, "unknown action")

// Execute apply one client intent in roomID on behalf of caller. The payload
// of a successful response is the committed state; the same state also
// reaches every subscriber through the bus.
func (c *Coordinator) Execute(ctx context.Context, caller middlewares.Caller, roomID string, req domain.WSRequest) domain.WSResponse {
	payload, err := c.dispatch(ctx, caller, roomID, req)

	resp := domain.WSResponse{Action: req.Action, RequestID: req.RequestID}
	if err != nil {
		code := errprocess.CodeOf(err)
		resp.Code = string(code)
		resp.Error = errprocess.Reason(err)
		c.Metrics.Intent(req.Action, string(code))
		if code == errprocess.CodeInternal {
			logger.Log.Error("intent failed",
				zap.String("action", req.Action),
				zap.String("room_id", roomID),
				zap.String("member_id", caller.MemberID),
				zap.Error(err),
			)
		}
		return resp
	}

	resp.Success = true
	resp.Payload = payload
	c.Metrics.Intent(req.Action, "ok")
	return resp
}

func (c *Coordinator) dispatch(ctx context.Context, caller middlewares.Caller, roomID string, req domain.WSRequest) (interface{}, error) {
	me := caller.MemberID

	switch domain.Action(req.Action) {
	//拍賣
	case domain.OpenAuction:
		return c.Auctions.OpenAuction(ctx, me, roomID, req.StartingPrice, req.Duration())
	case domain.PlaceBid:
		return c.Auctions.PlaceBid(ctx, me, roomID, req.Amount)

	//禮物
	case domain.SendGift:
		return c.Gifts.SendGift(ctx, giftdomain.SendGiftReq{
			RoomID:     roomID,
			SenderID:   me,
			SenderName: caller.DisplayName,
			ReceiverID: req.ReceiverID,
			KindID:     req.GiftID,
		})

	//投票
	case domain.StartPoll:
		p, err := c.Polls.StartPoll(ctx, me, roomID, req.CandidateIDs, req.Duration())
		if err != nil {
			return nil, err
		}
		return p.View(), nil
	case domain.CastVote:
		p, err := c.Polls.Vote(ctx, me, req.PollID, req.CandidateID)
		if err != nil {
			return nil, err
		}
		return p.View(), nil
	case domain.CancelPoll:
		p, err := c.Polls.CancelPoll(ctx, me, req.PollID)
		if err != nil {
			return nil, err
		}
		return p.View(), nil

	//贊助目標
	case domain.CreateGoal:
		g, err := c.Goals.CreateGoal(ctx, me, roomID, req.ModelID, req.Amount)
		if err != nil {
			return nil, err
		}
		return g.View(), nil
	case domain.FundGoal:
		g, err := c.Goals.Fund(ctx, me, req.GoalID, req.Amount)
		if err != nil {
			return nil, err
		}
		return g.View(), nil
	case domain.ConfirmGoal:
		g, err := c.Goals.Confirm(ctx, me, req.GoalID)
		if err != nil {
			return nil, err
		}
		return g.View(), nil
	case domain.RejectGoal:
		g, err := c.Goals.Reject(ctx, me, req.GoalID)
		if err != nil {
			return nil, err
		}
		return g.View(), nil

	//聊天與互動
	case domain.SendMessage:
		return c.Chat.SendMessage(ctx, roomID, me, caller.DisplayName, req.Content)
	case domain.Like:
		return c.Rooms.Like(ctx, me, roomID)

	//管理
	case domain.MuteMember:
		rec, err := c.Moderation.SetMuted(ctx, me, roomID, req.MemberID, req.Toggle())
		if err != nil {
			return nil, err
		}
		return rec.View(), nil
	case domain.BanMember:
		rec, err := c.Moderation.SetBanned(ctx, me, roomID, req.MemberID, req.Toggle())
		if err != nil {
			return nil, err
		}
		return rec.View(), nil
	case domain.ApproveMember:
		rec, err := c.Moderation.Approve(ctx, me, roomID, req.MemberID)
		if err != nil {
			return nil, err
		}
		return rec.View(), nil
	case domain.RejectMember:
		rec, err := c.Moderation.Reject(ctx, me, roomID, req.MemberID)
		if err != nil {
			return nil, err
		}
		return rec.View(), nil

	case domain.Resync:
		return c.Snapshot(ctx, roomID, me)
	}
	return nil, errUnknownAction
}
