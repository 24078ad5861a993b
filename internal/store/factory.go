// Package store elige el adapter de persistencia según la configuración.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
	"github.com/dropDatabas3/portalgate/internal/store/memory"
	"github.com/dropDatabas3/portalgate/internal/store/pg"
)

// Config del adapter.
type Config struct {
	Driver       string // "memory" | "postgres"
	DSN          string
	MaxConns     int32
	EnsureSchema bool
}

// Open crea el adapter configurado.
func Open(ctx context.Context, cfg Config) (repository.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		logger.L().Warn("using in-memory session store; sessions are lost on restart", logger.Component("store"))
		return memory.New(), nil
	case "postgres", "pg":
		s, err := pg.Open(ctx, pg.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns, MaxConnLifetime: time.Hour})
		if err != nil {
			return nil, err
		}
		if cfg.EnsureSchema {
			if err := s.EnsureSchema(ctx); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("store: ensure schema: %w", err)
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// RunJanitor borra sesiones vencidas cada interval hasta que ctx termine y las
// descuenta del gauge de sesiones activas (m puede ser nil).
func RunJanitor(ctx context.Context, s repository.Store, interval time.Duration, m *metrics.Metrics) {
	if interval <= 0 {
		return
	}
	log := logger.Named("store").With(logger.Op("janitor"))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.DeleteExpired(ctx, now)
			if err != nil {
				log.Warn("delete expired sessions failed", logger.Err(err))
				continue
			}
			if n > 0 {
				m.SessionsExpired(n)
				log.Info("expired sessions deleted", logger.Count(n))
			}
		}
	}
}
