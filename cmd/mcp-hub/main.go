// main implements the CLI for the MCP hub: a single process that terminates
// the MCP protocol for its clients and fans each call out to the
// downstream server that owns the tool being called.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/mcphub/mcp-hub/internal/admin"
	"github.com/mcphub/mcp-hub/internal/catalog"
	"github.com/mcphub/mcp-hub/internal/config"
	"github.com/mcphub/mcp-hub/internal/downstream"
	"github.com/mcphub/mcp-hub/internal/gateway"
	"github.com/mcphub/mcp-hub/internal/refreshloop"
	"github.com/mcphub/mcp-hub/internal/registry"
	"github.com/mcphub/mcp-hub/internal/sessionstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

func main() {
	var (
		configFile string
		loglevel   int
		logFormat  string
	)
	flag.StringVar(&configFile, "config", "./config/mcp-hub/config.yaml", "where to locate the hub config")
	flag.IntVar(&loglevel, "log-level", int(slog.LevelInfo), "set the log level 0=info, 4=warn, 8=error and -4=debug")
	flag.StringVar(&logFormat, "log-format", "txt", "switch to json logs with --log-format=json")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.Level(loglevel))
	handlerOpts := &slog.HandlerOptions{Level: slog.Level(loglevel)}
	logger = slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	if logFormat == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}

	tunables, err := config.Load(configFile)
	if err != nil {
		logger.Error("failed loading config, falling back to defaults", "error", err)
		tunables = config.Defaults()
	}

	reg := registry.New()
	cat := catalog.New()

	var sessions sessionstore.Store
	if tunables.SessionStoreURL != "" {
		sessions, err = sessionstore.NewRedis(tunables.SessionStoreURL, logger)
		if err != nil {
			logger.Error("failed connecting session store, falling back to in-memory", "error", err)
			sessions = sessionstore.NewMemory(logger)
		}
	} else {
		sessions = sessionstore.NewMemory(logger)
	}

	newClient := func(rec registry.Record) *downstream.Client {
		return downstream.New(rec.ID, rec.Name, rec.BaseURL, rec.MCPEndpoint, rec.Headers, tunables.DownstreamTimeout, logger)
	}

	loop := refreshloop.New(reg, cat, sessions, newClient, tunables.RefreshInterval, logger)
	gw := gateway.New(reg, cat, sessions, newClient, loop.RefreshServer, logger)
	adminHandler := admin.NewHandler(reg, cat, sessions, func(rec registry.Record) {
		loop.RefreshServer(context.Background(), rec)
	}, logger)
	statusHandler := admin.NewStatusHandler(reg, cat, logger)

	watcher := config.NewWatcher(configFile, logger)
	watcher.Start(func(t config.Tunables) {
		logger.Info("config changed, tunables will apply to new connections")
		tunables = t
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Start(ctx)

	mcpMux := http.NewServeMux()
	mcpMux.Handle("/mcp", gw)
	mcpMux.Handle("/mcp/", gw)
	mcpServer := &http.Server{Addr: tunables.MCPListenAddress, Handler: mcpMux}

	adminMux := http.NewServeMux()
	adminMux.Handle("/admin/servers", adminHandler)
	adminMux.Handle("/admin/servers/", adminHandler)
	adminMux.Handle("/status", statusHandler)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: tunables.AdminListenAddress, Handler: adminMux}

	go func() {
		logger.Info("starting MCP endpoint", "listening", mcpServer.Addr)
		if err := mcpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("mcp server failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		logger.Info("starting admin endpoint", "listening", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	logger.Info("shutting down mcp hub")
	loop.Stop()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down mcp server", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down admin server", "error", err)
	}
}
