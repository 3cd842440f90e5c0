package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/mural-go-api/internal/config"
	"github.com/noah-isme/mural-go-api/internal/utils"
)

const probeTimeout = 2 * time.Second

// HealthProbe checks one backing dependency.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse describes the configured backends and the result of each probe.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Store       string            `json:"store"`
	History     string            `json:"history"`
	Attachments string            `json:"attachments"`
	AIProvider  string            `json:"aiProvider"`
	DemoMode    bool              `json:"demoMode"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// HealthCheck reports the selected backends. A failing probe turns the answer into a 503.
func HealthCheck(cfg config.Config, probes ...HealthProbe) fiber.Handler {
	demo := !cfg.ProviderKey().Present()
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Store:       cfg.StoreBackend,
			History:     cfg.HistoryBackend,
			Attachments: cfg.AttachmentBackend,
			AIProvider:  cfg.AIProvider,
			DemoMode:    demo,
		}

		if len(probes) > 0 {
			payload.Checks = make(map[string]string, len(probes))
			for _, probe := range probes {
				ctx, cancel := context.WithTimeout(requestContext(c), probeTimeout)
				err := probe.Check(ctx)
				cancel()
				if err != nil {
					payload.Status = "degraded"
					payload.Checks[probe.Name] = err.Error()
					continue
				}
				payload.Checks[probe.Name] = "ok"
			}
		}

		if payload.Status != "ok" {
			return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, "service degraded", payload)
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
