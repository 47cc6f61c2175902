package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/pipeshard/pipeshard/cmd"
	"github.com/pipeshard/pipeshard/internal/api"
	"github.com/pipeshard/pipeshard/internal/config"
	"github.com/pipeshard/pipeshard/internal/events"
	"github.com/pipeshard/pipeshard/internal/jobs"
	"github.com/pipeshard/pipeshard/internal/logging"
)

// Options for the daemon - flat structure with toml/env mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8070" toml:"server.port" env:"SERVER_PORT"`

	// Jobs settings
	JobsFile  string `help:"Job definitions file" default:"jobs.toml" toml:"jobs.config_file" env:"JOBS_CONFIG_FILE"`
	HotReload bool   `help:"Reload job definitions when the file changes" default:"true" toml:"jobs.hot_reload" env:"JOBS_HOT_RELOAD"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipe   string `help:"Pipe engine logging level" default:"info" toml:"logging.pipe" env:"LOGGING_PIPE"`
	LoggingJobs   string `help:"Job runner logging level" default:"info" toml:"logging.jobs" env:"LOGGING_JOBS"`
	LoggingAPI    string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipe": opts.LoggingPipe,
				"jobs": opts.LoggingJobs,
				"api":  opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()

		store := jobs.NewTOML(opts.JobsFile)
		if err := store.Load(); err != nil {
			logger.Warn("Failed to load job definitions", "error", err)
		}

		runner := jobs.NewRunner(store, eventBus)

		var watcher *config.Watcher[map[string]jobs.Job]
		if opts.HotReload {
			watcher = config.NewWatcher(store.Path(), jobs.LoadFile, logging.GetLogger("jobs"))
			watcher.OnReload(func(defs map[string]jobs.Job) {
				store.Replace(defs)
				eventBus.Publish(events.JobsReloadedEvent{Path: store.Path(), Jobs: len(defs)})
				logger.Info("Job definitions reloaded", "jobs", len(defs))
			})
		}

		server := api.NewServer(&api.Options{
			Store:   store,
			Runner:  runner,
			Metrics: opts.MetricsEnabled,
		})

		hooks.OnStart(func() {
			if watcher != nil {
				if err := watcher.Start(); err != nil {
					logger.Warn("Failed to watch job definitions", "error", err)
				}
			}
			logger.Info("Starting HTTP server", "port", opts.Port)
			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			runner.CancelAll()
			if watcher != nil {
				_ = watcher.Stop()
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateRunCmd())
	cli.Root().AddCommand(cmd.CreateValidateCmd())

	cli.Run()
}
