package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cleanbot/internal/api"
	"cleanbot/internal/config"
	"cleanbot/internal/device"
	"cleanbot/internal/feature"
	"cleanbot/internal/publish"
	"cleanbot/internal/thinq"
)

// guardedAppliance serializes access to the controller, which performs no
// locking of its own, so the poll loop and the HTTP API can share it.
// Derived fields are resolved while the lock is held and only value
// copies leave the guard; the live snapshot mutates under WakeUp and
// must not escape.
type guardedAppliance struct {
	mu         sync.Mutex
	controller *device.Controller
}

func (g *guardedAppliance) StatusView() device.StatusView {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.controller.StatusView()
}

func (g *guardedAppliance) Standby() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.controller.Standby()
}

func (g *guardedAppliance) WakeUp(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.controller.WakeUp(ctx)
}

func (g *guardedAppliance) Poll(ctx context.Context) (*device.StatusView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, err := g.controller.Poll(ctx)
	if err != nil || status == nil {
		return nil, err
	}
	view := status.View()
	return &view, nil
}

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	settings, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting appliance adapter",
		zap.String("gateway", settings.GatewayURL),
		zap.String("device_id", settings.DeviceID),
		zap.Duration("poll_interval", settings.PollInterval))

	profile, err := config.LoadProfile(settings.ProfilePath, logger)
	if err != nil {
		logger.Fatal("Failed to load device profile", zap.Error(err))
	}

	// Connect to the cloud gateway
	gateway := thinq.NewClient(settings.GatewayURL, settings.GatewayToken, settings.DeviceID, logger)
	if err := gateway.Connect(); err != nil {
		logger.Fatal("Failed to connect to gateway", zap.Error(err))
	}
	defer gateway.Disconnect()

	registry := feature.NewRegistry(logger)
	appliance := &guardedAppliance{
		controller: device.NewController(gateway, profile, registry, logger),
	}

	// Mirror feature updates onto MQTT when a broker is configured
	if settings.MQTTBroker != "" {
		publisher, err := publish.Connect(publish.Options{
			BrokerURL:   settings.MQTTBroker,
			Username:    settings.MQTTUsername,
			Password:    settings.MQTTPassword,
			TopicPrefix: settings.TopicPrefix,
			DeviceID:    settings.DeviceID,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		publisher.Attach(registry)
		defer publisher.Close()
	}

	apiServer := api.NewServer(appliance, registry, logger, settings.APIPort)
	if err := apiServer.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}
	defer apiServer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runPollLoop(ctx, appliance, settings.PollInterval, logger)
	logger.Info("Shutting down")
}

// runPollLoop polls the appliance on a fixed cadence until ctx is
// cancelled. Polls run one at a time; failures are logged and the next
// tick tries again.
func runPollLoop(ctx context.Context, appliance *guardedAppliance, interval time.Duration, logger *zap.Logger) {
	poll := func() {
		view, err := appliance.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Poll failed", zap.Error(err))
			return
		}
		if view == nil {
			logger.Debug("Nothing new from gateway")
			return
		}
		logger.Debug("Status updated",
			zap.Bool("is_on", view.IsOn),
			zap.Bool("is_error", view.IsError),
			zap.String("run_state", view.RunState))
	}

	poll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
