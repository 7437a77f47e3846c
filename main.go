package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/v4l2cast/cmd"
	"github.com/smazurov/v4l2cast/internal/api"
	"github.com/smazurov/v4l2cast/internal/config"
	"github.com/smazurov/v4l2cast/internal/events"
	"github.com/smazurov/v4l2cast/internal/logging"
	"github.com/smazurov/v4l2cast/internal/metrics/exporters"
	"github.com/smazurov/v4l2cast/internal/supervisor"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Flags, then config file, then environment
		loadErr := config.LoadConfig(opts, cli.Root())

		logging.Initialize(opts.LoggingConfig())
		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "error", loadErr)
		}

		if err := opts.Validate(); err != nil {
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		sup := supervisor.New(*opts,
			supervisor.WithEventBus(eventBus),
			supervisor.WithNotifier(supervisor.SystemdNotifier{}),
		)

		var server *api.Server
		if opts.ServerAddr != "" {
			server = api.NewServer(&api.Options{
				Session:           sup,
				EventBus:          eventBus,
				PrometheusHandler: exporters.HTTPHandler(),
			})
		}

		statsExporter := exporters.NewSSEExporter(eventBus, sup)

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup

		hooks.OnStart(func() {
			statsExporter.Start(ctx)

			if opts.FeaturesWatchConfig && opts.Config != "" {
				watcher := config.NewWatcher(opts.Config, config.Reloader(*opts, config.ChangedFlags(cli.Root())))
				watcher.OnReload(sup.Reload)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := watcher.Run(ctx); err != nil {
						logger.Warn("Config watcher stopped", "error", err)
					}
				}()
			}

			if opts.FeaturesHotplug {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := sup.WatchHotplug(ctx); err != nil {
						logger.Warn("Hotplug monitor stopped", "error", err)
					}
				}()
			}

			if server != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					logger.Info("Starting HTTP server", "addr", opts.ServerAddr)
					if err := server.Start(opts.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Failed to start HTTP server", "error", err)
						os.Exit(1)
					}
				}()
			}

			if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Capture stopped", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()

			// A frame in progress finishes before the session tears down
			if !sup.Wait(stopTimeout(opts.WaitTimeout())) {
				logger.Warn("Capture session did not stop in time")
			}

			if server != nil {
				if err := server.Stop(); err != nil {
					logger.Error("Error stopping HTTP server", "error", err)
				}
			}
			statsExporter.Stop()
			wg.Wait()
		})
	})

	cli.Root().Use = "v4l2cast"
	cli.Root().Short = "V4L2 camera to H.264 capture service"

	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateSplitCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}

// stopTimeout bounds the shutdown wait by one readiness timeout per
// device, or by defaultStopTimeout when readiness waits are unbounded.
func stopTimeout(wait time.Duration) time.Duration {
	if wait <= 0 {
		return defaultStopTimeout
	}
	return 2*wait + time.Second
}

const defaultStopTimeout = 10 * time.Second
