package jwtx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Refresher keeps a KeySet in step with a remote JWKS endpoint.
type Refresher struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Keys     *KeySet
	Logger   *slog.Logger
}

// Refresh fetches the set once and swaps it into Keys.
func (r *Refresher) Refresh(ctx context.Context) error {
	set, err := FetchJWKS(ctx, r.Client, r.URL)
	if err != nil {
		return err
	}
	n, err := r.Keys.ResetFromJWKS(set)
	if err != nil {
		return err
	}
	r.logger().Debug("jwks refreshed", "url", r.URL, "keys", n)
	return nil
}

// Run refreshes on every tick until ctx is cancelled. Failures keep the
// previous keys.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger().Warn("jwks refresh failed", "url", r.URL, "err", err)
			}
		}
	}
}

func (r *Refresher) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
