// Command fabricd is the Network Service process entrypoint: it wires
// the Registry, Policy Engine, Integrity Engine, trace store/watchers,
// Router, Identity client, Fabric Front-End, and HTTP surface together
// and serves them over a single listener.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/softsdn/network-service/internal/fabric"
	"github.com/softsdn/network-service/internal/httpapi"
	"github.com/softsdn/network-service/internal/identity"
	"github.com/softsdn/network-service/internal/integrity"
	"github.com/softsdn/network-service/internal/platform/config"
	"github.com/softsdn/network-service/internal/platform/logger"
	"github.com/softsdn/network-service/internal/platform/metrics"
	"github.com/softsdn/network-service/internal/policy"
	"github.com/softsdn/network-service/internal/registry"
	"github.com/softsdn/network-service/internal/router"
	"github.com/softsdn/network-service/internal/trace"
)

func main() {
	addr := flag.String("addr", "", "HTTP/websocket listen address (defaults to config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.StandardLogger().Fatalf("load config: %v", err)
	}

	log := logger.New(logger.Config{
		Level:  envOr("LOG_LEVEL", "info"),
		Format: formatFor(cfg.Environment),
	})

	reg := registry.New()
	pol := policy.New()
	ig := integrity.New(cfg.Network.Secret)
	traces := trace.New(cfg.Network.MaxEventHistory, cfg.Network.MaxTraceHistory)
	watchers := trace.NewWatchers()
	idc := identity.New(cfg.Network.IdentityServiceURL)

	// fabric.Server implements router.SessionDeliverer, and Router
	// needs a deliverer at construction; the cycle is broken with
	// SetRouter once both sides exist.
	fabricServer := fabric.New(reg, watchers, nil, idc, ig, log)
	rt := router.New(reg, pol, ig, traces, watchers, fabricServer, router.Config{
		DeliveryTimeout: cfg.Network.DeliveryTimeout,
	}, log)
	fabricServer.SetRouter(rt)

	handler := httpapi.New(reg, pol, ig, rt, idc, log)

	mux := handler.Mux()
	mux.Handle("/ws", fabricServer)

	listenAddr := determineAddr(*addr, cfg)
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: metrics.InstrumentHandler(mux),
	}

	stopCleanup := startCleanupLoop(reg, cfg.Network.NodeTimeout, cfg.Network.HeartbeatInterval, log)
	defer close(stopCleanup)

	// Hourly operator report, scheduled on a calendar rather than the
	// fixed-period cleanup ticker so operators can retune it with a
	// standard cron expression.
	reporter := cron.New()
	if _, err := reporter.AddFunc("0 * * * *", func() {
		stats := rt.GetStats()
		log.WithFields(logrus.Fields{
			"nodes":     len(reg.ListNodes()),
			"delivered": stats.Delivered,
			"dropped":   stats.Dropped,
			"errors":    stats.Error,
		}).Info("fabric status report")
	}); err != nil {
		log.WithError(err).Warn("failed to schedule status report job")
	}
	reporter.Start()
	defer reporter.Stop()

	go func() {
		log.Infof("network service listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// startCleanupLoop runs the periodic stale-node/expired-contract
// sweep, ticking at the heartbeat interval.
func startCleanupLoop(reg *registry.Registry, timeout, heartbeatInterval time.Duration, log logrus.FieldLogger) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, id := range reg.CleanupStale(timeout) {
					log.WithField("node", id).Info("registry: node expired")
				}
				reg.CleanupExpiredContracts()
			}
		}
	}()
	return stop
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if flagAddr != "" {
		return flagAddr
	}
	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(cfg.Server.Port)
}

func formatFor(env config.Environment) string {
	if env.IsProduction() {
		return "json"
	}
	return "text"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
