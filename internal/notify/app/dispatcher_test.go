package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"live_session_service/internal/notify/domain"
	"live_session_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDispatcher_SendsInBackground(t *testing.T) {
	logger.SetNewNop()
	sent := make(chan string, 2)
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(n domain.Notification) bool {
		return n.UserID == "u1" && n.Title == "Outbid"
	})).Return(nil).Run(func(args mock.Arguments) { sent <- "u1" }).Once()
	sender.On("Send", mock.Anything, mock.MatchedBy(func(n domain.Notification) bool {
		return n.UserID == "u2"
	})).Return(errors.New("broker down")).Run(func(args mock.Arguments) { sent <- "u2" }).Once()

	d := NewDispatcher(sender, 8)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	d.Notify(ctx, "u1", "Outbid", "someone bid 600")
	d.Notify(ctx, "u2", "Gift", "you got a rose")
	d.Notify(ctx, "", "ignored", "no user")

	for i := 0; i < 2; i++ {
		select {
		case <-sent:
		case <-time.After(time.Second):
			t.Fatal("notification was not sent")
		}
	}
	cancel()
	<-d.Done()
	sender.AssertExpectations(t)
}

func TestDispatcher_FullQueueNeverBlocks(t *testing.T) {
	logger.SetNewNop()
	d := NewDispatcher(new(MockSender), 1)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), "u1", "t", "b")
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Len(t, d.queue, 1)
}
