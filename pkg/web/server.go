// Package web exposes the control plane: REST endpoints and websockets for
// reading status, tuning the correction live, and managing presets.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/trulydev/truly/internal/log"
	"github.com/trulydev/truly/pkg/presets"
	"github.com/trulydev/truly/pkg/recoil"
)

// Device is the device surface the control plane needs: connection state
// for the status snapshot and move dispatch for smooth-move requests.
// Satisfied by *makcu.Supervisor.
type Device interface {
	IsConnected() bool
	MoveRelative(dx, dy int) error
}

// PresetStore is the persistence surface the handlers need.
// Satisfied by *presets.Store.
type PresetStore interface {
	List() map[string]presets.Preset
	Get(name string) (presets.Preset, error)
	Save(name string, p presets.Preset) error
	Delete(name string) error
}

// Status is the runtime snapshot served to clients.
type Status struct {
	recoil.Snapshot
	DeviceConnected bool `json:"device_connected"`
}

// Server is the control-plane HTTP/websocket server.
type Server struct {
	app      *fiber.App
	addr     string
	settings *recoil.Settings
	device   Device
	store    PresetStore
	hub      *statusHub
}

// NewServer wires the routes. settings is shared with the scheduler and
// mutated here; device is read-only.
func NewServer(addr string, settings *recoil.Settings, device Device, store PresetStore) *Server {
	s := &Server{
		addr:     addr,
		settings: settings,
		device:   device,
		store:    store,
		hub:      newStatusHub(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "truly",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/toggle", s.handleToggle)
	api.Post("/toggle-button", s.handleToggleButton)
	api.Post("/move", s.handleMove)
	api.Get("/configs", s.handleListConfigs)
	api.Post("/configs", s.handleSaveConfig)
	api.Delete("/configs/:name", s.handleDeleteConfig)
	api.Post("/configs/:name/apply", s.handleApplyConfig)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleSettingsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Listen serves until Shutdown. Blocks.
func (s *Server) Listen() error {
	go s.hub.run()
	log.Info("control plane listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// status assembles the current snapshot.
func (s *Server) status() Status {
	return Status{
		Snapshot:        s.settings.Snapshot(),
		DeviceConnected: s.device.IsConnected(),
	}
}

// broadcastStatus pushes the current snapshot to /ws/status subscribers.
// Called after every mutation that goes through the control plane.
func (s *Server) broadcastStatus() {
	s.hub.broadcastJSON(s.status())
}
