// sandboxd is the plugin sandbox subprocess. The supervising host spawns
// it with one end of a socketpair inherited as HEARTHD_SOCKET_FD and talks
// newline-delimited JSON over it; everything the sandbox needs from the
// outside world travels through that channel.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/config"
	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/monitoring"
	"github.com/hearthd/sandboxd/internal/plugin"
	"github.com/hearthd/sandboxd/internal/plugins/statistics"
	"github.com/hearthd/sandboxd/internal/plugins/weather"
	"github.com/hearthd/sandboxd/internal/runner"
	"github.com/hearthd/sandboxd/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; the host reads stderr.
		os.Stderr.WriteString("sandboxd: " + err.Error() + "\n")
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	log, err := logging.New(logCfg)
	if err != nil {
		os.Stderr.WriteString("sandboxd: init logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	channel := os.NewFile(uintptr(cfg.Sandbox.SocketFD), "control-channel")
	if channel == nil {
		log.Error("invalid channel descriptor", zap.Int("fd", cfg.Sandbox.SocketFD))
		os.Exit(1)
	}

	registry := plugin.NewRegistry(cfg.Sandbox.PluginDir, log)
	for domain, impl := range map[string]any{
		weather.Domain:    weather.Integration{},
		statistics.Domain: statistics.Integration{},
	} {
		if err := registry.Register(domain, impl); err != nil {
			log.Error("register integration failed", zap.String("domain", domain), zap.Error(err))
			os.Exit(1)
		}
	}

	r := runner.New(
		transport.New(channel, log),
		registry,
		cfg.Proxy,
		log,
		monitoring.NewMetrics(),
	)

	// SIGTERM from the host closes the channel; the loop drains and exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		r.Shutdown()
	}()

	if err := r.Run(context.Background()); err != nil {
		log.Error("runner terminated abnormally", zap.Error(err))
		os.Exit(1)
	}
}
