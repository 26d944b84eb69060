package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"menreiki/app/config"
	"menreiki/app/service/history"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Server)(nil)

type Stats struct {
	Conversations int `json:"conversations"`
}

// Server exposes liveness and conversation statistics over HTTP.
type Server struct {
	listen string
	store  history.Store
	app    *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewServer(cfg.HTTP.Listen, do.MustInvoke[history.Store](di)), nil
}

func NewServer(listen string, store history.Store) *Server {
	s := &Server{
		listen: listen,
		store:  store,
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
	}

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/stats", s.handleStats)

	return s
}

func (s *Server) Enabled() bool {
	return s.listen != ""
}

// Run serves until ctx is done. It returns immediately when no listen
// address is configured.
func (s *Server) Run(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Status server listening", "addr", s.listen)
		errCh <- s.app.Listen(s.listen)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return errors.New("status server stopped")
	}
}

func (s *Server) Shutdown() error {
	if !s.Enabled() {
		return nil
	}

	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(Stats{
		Conversations: s.store.Conversations(),
	})
}
