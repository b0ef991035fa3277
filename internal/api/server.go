// Package api exposes the managed servers over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/faradayfan/dedicated-server-manager/internal/instances"
	"github.com/faradayfan/dedicated-server-manager/internal/manager"
	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

// APIKeyHeader carries the key when one is configured.
const APIKeyHeader = "X-API-Key"

// Instances is the part of the instance service the API drives.
type Instances interface {
	List() []instances.Summary
	Get(id string) (instances.Summary, error)
	Start(ctx context.Context, id string) (manager.Status, error)
	Stop(ctx context.Context, id string) (manager.Status, error)
	Restart(ctx context.Context, id string) (manager.Status, error)
	Kill(ctx context.Context, id string) (manager.Status, error)
	Profile(id string) (*profiles.Profile, error)
	SaveProfile(id string) (settings.Warnings, error)
	Create(name, installDir string) (*profiles.Profile, error)
	Import(dir string, includeIni bool) (*profiles.Profile, settings.Warnings, error)
	SetEnabled(id string, enabled bool) error
	Forget(id string) error
	Obliterate(ctx context.Context, id string) error
}

type Server struct {
	app  *fiber.App
	svc  Instances
	log  *zap.Logger
	addr string
}

func NewServer(svc Instances, addr, apiKey string, log *zap.Logger) *Server {
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{svc: svc, log: log.With(zap.String("component", "api")), addr: addr}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(s.logRequests)

	// cheap health endpoint
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	s.app.Use(requireAPIKey(apiKey))

	servers := s.app.Group("/servers")
	servers.Get("/", s.handleList)
	servers.Post("/", s.handleCreate)
	servers.Post("/import", s.handleImport)
	servers.Get("/:id", s.handleGet)
	servers.Delete("/:id", s.handleDelete)
	servers.Post("/:id/enable", s.setEnabled(true))
	servers.Post("/:id/disable", s.setEnabled(false))
	servers.Post("/:id/start", s.lifecycle(svc.Start))
	servers.Post("/:id/stop", s.lifecycle(svc.Stop))
	servers.Post("/:id/restart", s.lifecycle(svc.Restart))
	servers.Post("/:id/kill", s.lifecycle(svc.Kill))
	servers.Get("/:id/settings", s.handleSettings)
	servers.Post("/:id/settings/save", s.handleSave)
	servers.Put("/:id/settings/:name", s.handleSetSetting)
	servers.Delete("/:id/settings/:name", s.handleRemoveSetting)
	return s
}

func (s *Server) Addr() string { return s.addr }

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	s.log.Info("listening", zap.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requireAPIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		got := c.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	err := c.Next()
	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("ip", c.IP()),
	}
	if err != nil {
		s.log.Warn("request failed", append(fields, zap.Error(err))...)
		return err
	}
	s.log.Debug("request", append(fields, zap.Int("status", c.Response().StatusCode()))...)
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var fe *fiber.Error
	var tm *settings.TypeMismatchError
	var sm *settings.ShapeMismatchError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, instances.ErrUnknownInstance),
		errors.Is(err, manager.ErrUnknownServer),
		errors.Is(err, profiles.ErrUnknownSetting):
		return fiber.StatusNotFound
	case errors.Is(err, manager.ErrAlreadyRunning),
		errors.Is(err, manager.ErrNotRunning),
		errors.Is(err, instances.ErrDisabled),
		errors.Is(err, instances.ErrAlreadyManaged):
		return fiber.StatusConflict
	case errors.As(err, &tm), errors.As(err, &sm):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
