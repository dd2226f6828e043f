package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	pollTimeoutSeconds = 30
	pollRetryDelay     = 3 * time.Second
	laneBacklog        = 16
)

// Poller drives a long-poll loop and hands each update to a handler. Updates
// are dispatched on a per-user lane: one user's messages are handled in
// order, but a slow command (a /stop waiting out a stubborn process) never
// stalls another user's conversation.
type Poller struct {
	client *Client
	handle func(context.Context, Update)
	log    *slog.Logger

	mu    sync.Mutex
	lanes map[int64]chan Update
}

func NewPoller(client *Client, handle func(context.Context, Update)) *Poller {
	return &Poller{
		client: client,
		handle: handle,
		log:    slog.Default().With("component", "telegram.poller"),
		lanes:  make(map[int64]chan Update),
	}
}

// Run polls until the context is canceled. Transport errors are logged and
// retried after a short delay.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := p.client.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			p.log.Error("poll failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message.MessageID == 0 || update.Message.From.IsBot {
				continue
			}
			p.dispatch(ctx, update)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, update Update) {
	userID := update.Message.From.ID

	p.mu.Lock()
	lane, ok := p.lanes[userID]
	if !ok {
		lane = make(chan Update, laneBacklog)
		p.lanes[userID] = lane
		go p.drain(ctx, lane)
	}
	p.mu.Unlock()

	select {
	case lane <- update:
	default:
		// A full lane means the user's handler is wedged well past the
		// backlog; dropping beats stalling everyone else's poll.
		p.log.Warn("update dropped, user backlog full", "user", userID, "update", update.UpdateID)
	}
}

func (p *Poller) drain(ctx context.Context, lane <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-lane:
			p.handle(ctx, update)
		}
	}
}
