package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	goaldomain "live_session_service/internal/goal/domain"
	ledgerdomain "live_session_service/internal/ledger/domain"
	polldomain "live_session_service/internal/poll/domain"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/internal/session/domain"
	errprocess "live_session_service/pkg/err"

	"github.com/cucumber/godog"
)

// liveSessionWorld state shared by the steps of one scenario
type liveSessionWorld struct {
	t      *testing.T
	c      *Coordinator
	room   *roomdomain.Room
	pollID string
	goalID string
	last   domain.WSResponse
	err    error
}

func (w *liveSessionWorld) exec(member string, req domain.WSRequest) {
	w.last = w.c.Execute(context.Background(), as(member), w.room.ID, req)
	w.err = nil
	if !w.last.Success {
		w.err = fmt.Errorf("%s: %s", w.last.Code, w.last.Error)
	}
}

func (w *liveSessionWorld) hostOpensRoom(host string) error {
	w.c = newMemoryCoordinator(w.t)
	w.room = liveRoom(w.t, w.c, host)
	return w.c.Ledger.OpenWallet(context.Background(), host)
}

func (w *liveSessionWorld) walletHas(owner string, amount int64) error {
	ctx := context.Background()
	if err := w.c.Ledger.OpenWallet(ctx, owner); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	return w.c.Ledger.TopUp(ctx, owner, amount, "seed:"+owner)
}

func (w *liveSessionWorld) transfer(from string, amount int64, to string) error {
	w.err = w.c.Ledger.Transfer(context.Background(), from, to, amount, ledgerdomain.KindTransfer, "")
	return nil
}

func (w *liveSessionWorld) shouldBeRejected(code string) error {
	if w.err == nil {
		return fmt.Errorf("expected %s, operation succeeded", code)
	}
	if got := string(errprocess.CodeOf(w.err)); got != code && !strings.HasPrefix(w.err.Error(), code+":") {
		return fmt.Errorf("expected %s, got %v", code, w.err)
	}
	return nil
}

func (w *liveSessionWorld) shouldSucceed() error {
	return w.err
}

func (w *liveSessionWorld) balanceShouldBe(owner string, want int64) error {
	got, err := w.c.Ledger.Balance(context.Background(), owner)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%s balance %d, want %d", owner, got, want)
	}
	return nil
}

func (w *liveSessionWorld) openAuction(price int64) error {
	w.exec(w.room.HostID, domain.WSRequest{Action: string(domain.OpenAuction), StartingPrice: price, DurationSecs: 600})
	return w.err
}

func (w *liveSessionWorld) bid(member string, amount int64) error {
	w.exec(member, domain.WSRequest{Action: string(domain.PlaceBid), Amount: amount})
	return nil
}

func (w *liveSessionWorld) topBidShouldBe(amount int64, bidder string) error {
	room, err := w.c.Rooms.Get(context.Background(), w.room.ID)
	if err != nil {
		return err
	}
	if room.CurrentBid != amount || room.TopBidderID != bidder {
		return fmt.Errorf("top bid %d by %q, want %d by %q", room.CurrentBid, room.TopBidderID, amount, bidder)
	}
	return nil
}

func (w *liveSessionWorld) startPoll(candidates string, minutes int) error {
	w.exec(w.room.HostID, domain.WSRequest{
		Action:       string(domain.StartPoll),
		CandidateIDs: strings.Split(candidates, ","),
		DurationSecs: int64(minutes * 60),
	})
	if w.err != nil {
		return w.err
	}
	w.pollID = w.last.Payload.(polldomain.PollView).ID
	return nil
}

func (w *liveSessionWorld) vote(member, candidate string) error {
	w.exec(member, domain.WSRequest{Action: string(domain.CastVote), PollID: w.pollID, CandidateID: candidate})
	return nil
}

func (w *liveSessionWorld) poll() (*polldomain.Poll, error) {
	return w.c.Polls.Get(context.Background(), w.pollID)
}

func (w *liveSessionWorld) votesShouldBe(candidate string, want int64) error {
	p, err := w.poll()
	if err != nil {
		return err
	}
	if got := p.Tally[candidate]; got != want {
		return fmt.Errorf("%s has %d votes, want %d", candidate, got, want)
	}
	return nil
}

func (w *liveSessionWorld) totalVotesShouldBe(want int64) error {
	p, err := w.poll()
	if err != nil {
		return err
	}
	if got := p.Total(); got != want {
		return fmt.Errorf("total %d votes, want %d", got, want)
	}
	return nil
}

func (w *liveSessionWorld) createGoal(target int64) error {
	w.exec(w.room.HostID, domain.WSRequest{Action: string(domain.CreateGoal), Amount: target})
	if w.err != nil {
		return w.err
	}
	w.goalID = w.last.Payload.(goaldomain.GoalView).ID
	return nil
}

func (w *liveSessionWorld) contribute(member string, amount int64) error {
	w.exec(member, domain.WSRequest{Action: string(domain.FundGoal), GoalID: w.goalID, Amount: amount})
	return w.err
}

func (w *liveSessionWorld) goal() (*goaldomain.DonationGoal, error) {
	return w.c.Goals.Get(context.Background(), w.goalID)
}

func (w *liveSessionWorld) goalShouldBeReached(amount int64) error {
	g, err := w.goal()
	if err != nil {
		return err
	}
	if g.Status != goaldomain.GoalReached || g.CurrentAmount != amount {
		return fmt.Errorf("goal %s at %d, want reached at %d", g.Status, g.CurrentAmount, amount)
	}
	return nil
}

func (w *liveSessionWorld) modelRejects() error {
	g, err := w.goal()
	if err != nil {
		return err
	}
	w.exec(g.ModelID, domain.WSRequest{Action: string(domain.RejectGoal), GoalID: w.goalID})
	return w.err
}

func (w *liveSessionWorld) refundedShouldBe(want int64) error {
	g, err := w.goal()
	if err != nil {
		return err
	}
	if got := g.Refunded(); got != want {
		return fmt.Errorf("refunded %d, want %d", got, want)
	}
	return nil
}

func initializeLiveSessionScenario(t *testing.T) func(ctx *godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		w := &liveSessionWorld{t: t}

		ctx.Step(`^主播 "([^"]*)" 開了一個直播間$`, w.hostOpensRoom)
		ctx.Step(`^"([^"]*)" 的錢包有 (\d+) coins$`, w.walletHas)
		ctx.Step(`^"([^"]*)" 轉帳 (\d+) coins 給 "([^"]*)"$`, w.transfer)
		ctx.Step(`^應該被拒絕 "([^"]*)"$`, w.shouldBeRejected)
		ctx.Step(`^"([^"]*)" 的餘額應該是 (\d+)$`, w.balanceShouldBe)

		ctx.Step(`^主播開始拍賣 起標價 (\d+)$`, w.openAuction)
		ctx.Step(`^"([^"]*)" 出價 (\d+)$`, w.bid)
		ctx.Step(`^出價成功$`, w.shouldSucceed)
		ctx.Step(`^目前最高價應該是 (\d+) 由 "([^"]*)" 出價$`, w.topBidShouldBe)

		ctx.Step(`^主播開始投票 候選人 "([^"]*)" 為期 (\d+) 分鐘$`, w.startPoll)
		ctx.Step(`^"([^"]*)" 投票給 "([^"]*)"$`, w.vote)
		ctx.Step(`^投票成功$`, w.shouldSucceed)
		ctx.Step(`^"([^"]*)" 的票數應該是 (\d+)$`, w.votesShouldBe)
		ctx.Step(`^總票數應該是 (\d+)$`, w.totalVotesShouldBe)

		ctx.Step(`^主播建立贊助目標 (\d+) coins$`, w.createGoal)
		ctx.Step(`^"([^"]*)" 贊助 (\d+) coins$`, w.contribute)
		ctx.Step(`^贊助目標應該達成 金額 (\d+)$`, w.goalShouldBeReached)
		ctx.Step(`^模特兒拒絕贊助目標$`, w.modelRejects)
		ctx.Step(`^已退款總額應該是 (\d+)$`, w.refundedShouldBe)
	}
}

func TestLiveSessionFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeLiveSessionScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
