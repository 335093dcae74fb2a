package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohowland/elec_core/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/elec_core/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/elec_core/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/elec_core/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/elec_core/internal/pkg/datastreams/webhook"
	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"github.com/ohowland/elec_core/internal/pkg/network"
	"github.com/ohowland/elec_core/internal/pkg/webservice"
	"golang.org/x/sync/errgroup"
)

// processor is a datastream handler that runs until stopped.
type processor interface {
	Process() error
	Stop()
}

func main() {
	configPath := flag.String("config", "./config/elec.json", "runner configuration")
	flag.Parse()

	log.Println("[Main] Starting elec_core")
	if err := run(*configPath); err != nil {
		log.Println("[Main]", err)
		os.Exit(1)
	}
	log.Println("[Main] Stopped")
}

func run(configPath string) error {
	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}

	log.Println("[Main] Loading Network", cfg.Network)
	reg := metrics.DefaultRegistry()
	n, err := network.LoadFile(cfg.Network,
		network.WithInterval(time.Duration(cfg.Interval)*time.Millisecond),
		network.WithMetrics(reg))
	if err != nil {
		return err
	}
	defer n.Close()
	if err := n.Validate(); err != nil {
		return err
	}
	if err := n.SetTimeFactor(cfg.TimeFactor); err != nil {
		return err
	}
	if err := setRPM(n, cfg.RPM); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	log.Println("[Main] Connecting Datastreams")
	if err := linkDatastreams(ctx, g, n, cfg); err != nil {
		return err
	}

	if cfg.Modbus.Config != "" {
		log.Println("[Main] Connecting Modbus Poller")
		mcfg, err := modbuscomm.ReadConfig(cfg.Modbus.Config)
		if err != nil {
			return err
		}
		poller := modbuscomm.NewPoller(mcfg)
		sources := modbuscomm.NewSources(poller, mcfg.Registers, poller.PollRate())
		if err := sources.Bind(n, cfg.Modbus.Bindings); err != nil {
			return err
		}
		g.Go(func() error { return sources.Run(ctx) })
	}

	if cfg.Webservice != "" {
		wcfg, err := webservice.ReadConfig(cfg.Webservice)
		if err != nil {
			return err
		}
		app := &webservice.App{Net: n, Metrics: reg, Config: wcfg}
		g.Go(func() error { return app.ListenAndServe(ctx) })
	}

	log.Println("[Main] Starting Network", n.Name())
	if !n.Start() {
		return fmt.Errorf("network %q did not start", n.Name())
	}
	g.Go(func() error {
		<-ctx.Done()
		n.Stop()
		return nil
	})

	return g.Wait()
}

func setRPM(n *network.Network, rpm map[string]float64) error {
	for name, v := range rpm {
		c, ok := n.FindByName(name)
		if !ok {
			return fmt.Errorf("%w: no component %q", network.ErrInvalidAccess, name)
		}
		gen, ok := c.AsGenerator()
		if !ok {
			return fmt.Errorf("%w: %q is not a generator", network.ErrInvalidAccess, name)
		}
		gen.SetRPM(v)
	}
	return nil
}

func linkDatastreams(ctx context.Context, g *errgroup.Group, n *network.Network, cfg runnerConfig) error {
	if cfg.MongoDB != "" {
		h, err := mongodb.New(cfg.MongoDB, n)
		if err != nil {
			return err
		}
		launch(ctx, g, &h)
	}
	if cfg.NATS != "" {
		h, err := natshandler.New(cfg.NATS, n)
		if err != nil {
			return err
		}
		launch(ctx, g, &h)
	}
	if cfg.SQL != "" {
		h, err := sqldb.New(cfg.SQL, n)
		if err != nil {
			return err
		}
		launch(ctx, g, &h)
	}
	if cfg.Webhook != "" {
		h, err := webhook.New(cfg.Webhook, n)
		if err != nil {
			return err
		}
		launch(ctx, g, &h)
	}
	return nil
}

// launch runs p in the group and stops it when ctx is done.
func launch(ctx context.Context, g *errgroup.Group, p processor) {
	errc := make(chan error, 1)
	go func() { errc <- p.Process() }()
	g.Go(func() error {
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
			p.Stop()
			return <-errc
		}
	})
}
