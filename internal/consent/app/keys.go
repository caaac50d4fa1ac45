package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
)

// InitVerifier builds the KeySet and verifier for caller tokens.
//
// Key sources:
//   - AUTH_JWKS_URL: keys are fetched from the identity provider and
//     refreshed in the background until ctx is cancelled. A failed first
//     fetch is logged; /readyz reports not ready until keys arrive.
//   - AUTH_PUBLIC_KEY_FILE: a single PEM Ed25519 key registered under
//     AUTH_KEY_ID.
func InitVerifier(ctx context.Context, cfg Config, logger *slog.Logger) (*jwtx.KeySet, jwtx.Verifier, error) {
	keys := jwtx.NewKeySet()

	switch {
	case cfg.JWKSURL != "":
		refresher := &jwtx.Refresher{
			URL:      cfg.JWKSURL,
			Interval: cfg.JWKSRefreshInterval,
			Client:   &http.Client{Timeout: 10 * time.Second},
			Keys:     keys,
			Logger:   logger,
		}
		if err := refresher.Refresh(ctx); err != nil {
			logger.Warn("initial jwks fetch failed", "url", cfg.JWKSURL, "error", err)
		}
		go refresher.Run(ctx)

		logger.Info("jwks key source configured",
			"url", cfg.JWKSURL,
			"refresh_interval", cfg.JWKSRefreshInterval,
		)

	case cfg.PublicKeyFile != "":
		pemKey, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read public key: %w", err)
		}
		pub, err := cryptox.ParseEd25519PublicKey(pemKey)
		if err != nil {
			return nil, nil, fmt.Errorf("parse public key: %w", err)
		}
		keys.Add(cfg.KeyID, pub)

		logger.Info("static verification key loaded", "kid", cfg.KeyID)

	default:
		return nil, nil, errors.New("no token verification key source configured")
	}

	verifier := jwtx.NewVerifierEdDSA(keys, jwtx.VerifyOptions{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Leeway:   30 * time.Second,
	})
	return keys, verifier, nil
}
