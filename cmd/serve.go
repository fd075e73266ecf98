package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hscore/internal/api"
	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve snapshots, input layers and chat over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		resolver := initResolver()
		defer resolver.Close() //nolint:errcheck

		var assistant api.Assistant
		if a, err := initAssistant(st); err != nil {
			zap.L().Warn("serve: chat disabled", zap.Error(err))
		} else {
			assistant = a
		}
		if cfg.Server.AdminToken == "" {
			zap.L().Warn("serve: admin routes disabled (HSCORE_SERVER_ADMIN_TOKEN unset)")
		}

		srvAPI := api.New(st, assistant, api.Options{
			AdminToken:     cfg.Server.AdminToken,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Layers:         layerFuncs(cfg.Inputs, resolver),
			CacheEntries:   cfg.Server.CacheEntries,
			CacheTTL:       time.Duration(cfg.Server.CacheTTLSecs) * time.Second,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// layerFuncs maps the raw layer endpoints to configured inputs. Inputs
// without a path are left out and answer 404.
func layerFuncs(inputs config.InputsConfig, r pipeline.Localizer) map[string]api.LayerFunc {
	sources := map[string]config.LayerConfig{
		api.LayerHawkerCentres: inputs.Hawkers,
		api.LayerMRTExits:      inputs.MRTExits,
		api.LayerBusStops:      inputs.BusStops,
	}
	out := make(map[string]api.LayerFunc, len(sources))
	for name, lc := range sources {
		if lc.Path == "" {
			continue
		}
		out[name] = func(ctx context.Context) ([]byte, error) {
			return pipeline.LayerGeoJSON(ctx, r, lc)
		}
	}
	return out
}
