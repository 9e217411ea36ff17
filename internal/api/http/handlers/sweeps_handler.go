package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/service"
)

// SweepRunner runs a named sweep under its lease.
type SweepRunner interface {
	RunSweep(ctx context.Context, name string) (service.SweepReport, bool, error)
}

// SweepsHandler triggers sweeps on demand.
type SweepsHandler struct {
	runner SweepRunner
}

// NewSweepsHandler constructs handler.
func NewSweepsHandler(runner SweepRunner) *SweepsHandler {
	return &SweepsHandler{runner: runner}
}

// Run handles POST /sweeps/:name.
func (h *SweepsHandler) Run(c *fiber.Ctx) error {
	report, ran, err := h.runner.RunSweep(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	if !ran {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"data": fiber.Map{"sweep": c.Params("name"), "skipped": true},
		})
	}
	return c.JSON(fiber.Map{"data": report})
}
