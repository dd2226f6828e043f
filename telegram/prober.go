package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"
)

// Prober checks whether a hosted bot's token answers the Bot API. Timeout
// errors are retried a bounded number of times; any other error fails the
// probe outright.
type Prober struct {
	baseURL    string
	httpClient *http.Client

	Attempts int
	Delay    time.Duration
}

func NewProber(baseURL string) *Prober {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Prober{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		Attempts:   5,
		Delay:      2 * time.Second,
	}
}

// Lookup performs a single getMe with the hosted bot's token.
func (p *Prober) Lookup(ctx context.Context, token string) (BotIdentity, error) {
	return getMe(ctx, p.httpClient, p.baseURL, token)
}

// Verify retries Lookup on timeout-class errors until the configured attempt
// budget is exhausted. A non-timeout error aborts immediately.
func (p *Prober) Verify(ctx context.Context, token string) (BotIdentity, error) {
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return BotIdentity{}, ctx.Err()
			case <-time.After(p.Delay):
			}
		}

		identity, err := p.Lookup(ctx, token)
		if err == nil {
			return identity, nil
		}
		if !isTimeout(err) {
			return BotIdentity{}, err
		}
		lastErr = err
	}
	return BotIdentity{}, lastErr
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
