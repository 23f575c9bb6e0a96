package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/melih/bamview-paas/internal/config"
	"github.com/melih/bamview-paas/internal/core/domain"
	"github.com/melih/bamview-paas/internal/core/services"
)

// SessionHandler exposes the launch-and-readiness control plane over HTTP.
type SessionHandler struct {
	registry *config.Registry
	launcher *services.Launcher
}

func NewSessionHandler(registry *config.Registry, launcher *services.Launcher) *SessionHandler {
	return &SessionHandler{registry: registry, launcher: launcher}
}

type CreateSessionRequest struct {
	Plugin string `json:"plugin"`
	BamURL string `json:"bam_url"`
	User   string `json:"user"`
}

// CreateSession resolves the plugin's deployment config, launches the
// viewer container behind the proxy, and returns the session including the
// access URL the client should poll and eventually display.
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Plugin == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Plugin name is required",
		})
	}

	sessionID := uuid.NewString()[:8]

	extra := map[string]string{}
	if req.BamURL != "" {
		extra["BAM_URL"] = req.BamURL
	}
	spec, err := h.registry.Resolve(req.Plugin, config.SessionContext{
		SessionID: sessionID,
		User:      req.User,
		Extra:     extra,
	})
	if err != nil {
		return h.renderError(c, err)
	}

	session, err := h.launcher.Launch(c.Context(), sessionID, spec)
	if err != nil {
		return h.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	return c.JSON(h.launcher.List())
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.launcher.Get(c.Params("id"))
	if err != nil {
		return h.renderError(c, err)
	}
	return c.JSON(session)
}

func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	if err := h.launcher.Stop(c.Context(), c.Params("id")); err != nil {
		return h.renderError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *SessionHandler) GetSessionLogs(c *fiber.Ctx) error {
	logs, err := h.launcher.Logs(c.Context(), c.Params("id"))
	if err != nil {
		return h.renderError(c, err)
	}
	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

// renderError maps the domain error taxonomy onto HTTP status codes.
func (h *SessionHandler) renderError(c *fiber.Ctx, err error) error {
	var confErr *domain.ConfigurationError
	if errors.As(err, &confErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var launchErr *domain.LaunchError
	if errors.As(err, &launchErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	if errors.Is(err, services.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
