package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/videocms/authkit/credentials"
	"github.com/videocms/authkit/emailcheck"
	"github.com/videocms/authkit/internal/config"
	"github.com/videocms/authkit/session"
	"github.com/videocms/authkit/transport"
)

// buildManager wires together the credential store, the HTTP client and the
// optional email verifier into a session manager. The returned cleanup
// releases whatever the chosen store backend holds open.
func buildManager(ctx context.Context, cfg config.Config, logger *slog.Logger) (*session.Manager, func(), error) {
	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	client := transport.New(transport.WithTimeouts(cfg.RequestTimeout, cfg.TotalTimeout))

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.EmailCheckURL != "" {
		opts = append(opts, session.WithEmailVerifier(
			emailcheck.New(cfg.EmailCheckURL, cfg.EmailCheckAPIKey, client, cfg.EmailCheckRPS),
		))
	}

	manager := session.NewManager(cfg.BaseURL, client, store, opts...)
	if err := manager.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("restore session: %w", err)
	}

	return manager, cleanup, nil
}

func buildStore(ctx context.Context, cfg config.Config) (credentials.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return credentials.NewMemoryStore(), func() {}, nil

	case config.StoreFile:
		passphrase := cfg.StorePassphrase
		if passphrase == "" {
			return nil, nil, fmt.Errorf("file store requires AUTHKIT_STORE_PASSPHRASE")
		}
		store, err := credentials.NewFileStore(cfg.StorePath+".sealed", passphrase)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.StoreSQLite:
		store, err := credentials.NewSQLiteStore(cfg.StorePath + ".db")
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.StorePostgres:
		if cfg.StoreDSN == "" {
			return nil, nil, fmt.Errorf("postgres store requires AUTHKIT_STORE_DSN")
		}
		pool, err := credentials.Connect(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		store := credentials.NewPostgresStore(pool, cfg.StoreProfile)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
