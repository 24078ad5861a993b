// Package health contiene los controllers de liveness y readiness.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/portalgate/internal/http/dto"
	"github.com/dropDatabas3/portalgate/internal/http/helpers"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

// Check verifica una dependencia (store, cache, JWKS).
type Check func(ctx context.Context) error

type Controller struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewController(checks map[string]Check) *Controller {
	return &Controller{checks: checks, timeout: 2 * time.Second}
}

// Healthz maneja GET /healthz: el proceso responde.
func (c *Controller) Healthz(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Readyz maneja GET /readyz: todas las dependencias responden.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		resp = dto.HealthResponse{Status: "ready", Components: make(map[string]string, len(c.checks))}
	)
	for name, check := range c.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				resp.Status = "unavailable"
				resp.Components[name] = "down"
				logger.From(r.Context()).Warn("readiness check failed", logger.Component(name), logger.Err(err))
				return
			}
			resp.Components[name] = "ok"
		}(name, check)
	}
	wg.Wait()

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
