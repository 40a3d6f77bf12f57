package infrastructure

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Server is anything with a blocking Start and a graceful Stop: the HTTP
// server and the NATS command handler both qualify.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
}

func NewApp(servers []Server) *App {
	return &App{servers: servers}
}

// Run starts every server and blocks until ctx is cancelled, then stops them.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping servers...")

	for _, srv := range a.servers {
		if err := srv.Stop(context.Background()); err != nil {
			slog.Error("server stop failed", "error", err)
		}
	}

	return g.Wait()
}
