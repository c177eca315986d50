package web

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/trulydev/truly/internal/log"
	"github.com/trulydev/truly/pkg/button"
	"github.com/trulydev/truly/pkg/motion"
	"github.com/trulydev/truly/pkg/presets"
)

// handleStatus returns the runtime snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleToggle flips the armed flag.
func (s *Server) handleToggle(c *fiber.Ctx) error {
	enabled := s.settings.Toggle()
	log.Info("correction toggled via control plane", "enabled", enabled)
	s.broadcastStatus()
	return c.JSON(fiber.Map{"is_enabled": enabled})
}

type toggleButtonRequest struct {
	Button string `json:"button"`
}

// handleToggleButton reassigns which button arms correction.
func (s *Server) handleToggleButton(c *fiber.Ctx) error {
	var req toggleButtonRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	b, err := button.ParseToggle(req.Button)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.settings.SetToggleButton(b); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.broadcastStatus()
	return c.JSON(fiber.Map{"toggle_button": b.String()})
}

type moveRequest struct {
	DX         int `json:"dx"`
	DY         int `json:"dy"`
	Steps      int `json:"steps"`
	DurationMs int `json:"duration_ms"`
}

// handleMove plays one smooth relative move on the device. Defaults match
// the easing generator's intended feel: 20 steps over 50ms.
func (s *Server) handleMove(c *fiber.Ctx) error {
	req := moveRequest{Steps: 20, DurationMs: 50}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if req.Steps < 1 || req.DurationMs < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "steps must be >= 1 and duration_ms >= 0"})
	}
	err := motion.Glide(s.device, req.DX, req.DY, req.Steps, time.Duration(req.DurationMs)*time.Millisecond)
	switch {
	case errors.Is(err, motion.ErrNoDisplacement):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Move completed."})
}

// handleListConfigs returns all saved presets.
func (s *Server) handleListConfigs(c *fiber.Ctx) error {
	return c.JSON(s.store.List())
}

type saveConfigRequest struct {
	GunName    string  `json:"gun_name"`
	PullDown   float64 `json:"pull_down_value"`
	Horizontal float64 `json:"horizontal_value"`
	DelayMs    int     `json:"horizontal_delay_ms"`
	DurationMs int     `json:"horizontal_duration_ms"`
}

// handleSaveConfig creates or overwrites a named preset.
func (s *Server) handleSaveConfig(c *fiber.Ctx) error {
	var req saveConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	p := presets.Preset{
		PullDown:   req.PullDown,
		Horizontal: req.Horizontal,
		DelayMs:    req.DelayMs,
		DurationMs: req.DurationMs,
	}
	if err := s.store.Save(req.GunName, p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Config saved successfully."})
}

// handleDeleteConfig removes a named preset.
func (s *Server) handleDeleteConfig(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := s.store.Delete(name); err != nil {
		if errors.Is(err, presets.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Config not found."})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Config deleted successfully."})
}

// handleApplyConfig loads a preset into the live settings.
func (s *Server) handleApplyConfig(c *fiber.Ctx) error {
	name := c.Params("name")
	p, err := s.store.Get(name)
	if err != nil {
		if errors.Is(err, presets.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Config not found."})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	s.settings.SetPullDown(p.PullDown)
	s.settings.SetHorizontal(p.Horizontal)
	s.settings.SetHorizontalDelay(p.DelayMs)
	s.settings.SetHorizontalDuration(p.DurationMs)
	s.broadcastStatus()
	return c.JSON(s.status())
}

// applySettingsUpdate applies one websocket settings message. Fields are
// independent: a malformed field is skipped, the rest still apply.
func (s *Server) applySettingsUpdate(raw []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}

	applied := false
	if v, ok := fields["pull_down"]; ok {
		var f float64
		if json.Unmarshal(v, &f) == nil {
			s.settings.SetPullDown(f)
			applied = true
		}
	}
	if v, ok := fields["horizontal"]; ok {
		var f float64
		if json.Unmarshal(v, &f) == nil {
			s.settings.SetHorizontal(f)
			applied = true
		}
	}
	if v, ok := fields["horizontal_delay_ms"]; ok {
		var n int
		if json.Unmarshal(v, &n) == nil {
			s.settings.SetHorizontalDelay(n)
			applied = true
		}
	}
	if v, ok := fields["horizontal_duration_ms"]; ok {
		var n int
		if json.Unmarshal(v, &n) == nil {
			s.settings.SetHorizontalDuration(n)
			applied = true
		}
	}
	return applied
}

// handleSettingsWS streams live settings writes from a client.
func (s *Server) handleSettingsWS(c *websocket.Conn) {
	defer c.Close()
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		if s.applySettingsUpdate(raw) {
			s.broadcastStatus()
		}
	}
}

// handleStatusWS subscribes a client to status broadcasts.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := newStatusClient(s.hub, c)

	// seed with the current state so the client need not wait for the
	// next mutation
	if payload, err := json.Marshal(s.status()); err == nil {
		client.send <- payload
	}

	client.serve()
}
