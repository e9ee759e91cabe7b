package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audio-annotator/internal/api/v2"
	"github.com/tphakala/audio-annotator/internal/app"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/datastore"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// Command creates the command running the reference annotation store
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the annotation store API",
		Long:  "Serves projects, tasks and annotations from the configured database over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				settings.WebServer.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address of the API, overrides webserver.listen")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("serve")

	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close datastore", logger.Error(err))
		}
	}()

	svc, err := app.NewServices(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(shutdownTimeout); err != nil {
			log.Warn("event bus did not drain", logger.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = settings.WebServer.Debug
	if _, err := api.New(e, store, &settings.WebServer, api.WithPublisher(svc)); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("annotation store listening", logger.String("address", settings.WebServer.Listen))
		if err := e.Start(settings.WebServer.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down annotation store")
		return e.Shutdown(shutdownCtx)
	})

	if settings.Metrics.Enabled {
		endpoint, err := observability.NewEndpoint(&settings.Metrics, svc.Metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	return g.Wait()
}
