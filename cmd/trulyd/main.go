// trulyd is the recoil-control daemon: it supervises the MAKCU device,
// runs the correction scheduler, and serves the control plane.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/trulydev/truly/internal/config"
	"github.com/trulydev/truly/internal/log"
	"github.com/trulydev/truly/pkg/makcu"
	"github.com/trulydev/truly/pkg/presets"
	"github.com/trulydev/truly/pkg/recoil"
	"github.com/trulydev/truly/pkg/web"
)

func main() {
	configPath := flag.String("config", "truly.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("configuration error", "err", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	log.Info("trulyd starting",
		"listen", cfg.ListenAddr,
		"device", cfg.SerialDevice,
		"tick", cfg.TickInterval)

	monitor := makcu.NewMonitor()
	supervisor := makcu.NewSupervisor(func() (makcu.Port, error) {
		return makcu.OpenSerial(cfg.SerialDevice, cfg.SerialBaud)
	}, monitor)

	settings := recoil.NewSettings()
	scheduler := recoil.NewScheduler(settings, monitor, supervisor, cfg.TickInterval, cfg.ReconnectBackoff)

	store := presets.NewStore(cfg.PresetsPath)
	server := web.NewServer(cfg.ListenAddr, settings, supervisor, store)

	// First attempt up front; the scheduler keeps retrying on its backoff
	// if the device is not plugged in yet.
	if err := supervisor.Connect(); err != nil {
		log.Warn("device not available at startup", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		return server.Listen()
	})
	g.Go(func() error {
		<-ctx.Done()
		supervisor.Disconnect()
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("trulyd exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("trulyd stopped")
}
