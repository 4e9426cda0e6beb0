package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// Server is a long-running component. Start blocks until ctx is cancelled or
// the component fails; Stop releases whatever Start is blocked on.
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

// Run starts every server and stops them all once ctx is done or any of
// them fails. Servers stop in reverse registration order.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.servers) - 1; i >= 0; i-- {
		if err := a.servers[i].Stop(stopCtx); err != nil {
			slog.Warn("server stop failed", "error", err)
		}
	}

	return g.Wait()
}
