package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/ohowland/elec_core/internal/pkg/hmi"
	"github.com/ohowland/elec_core/internal/pkg/network"
)

func main() {
	path := flag.String("network", "./config/network/twinbus.yaml", "network definition")
	factor := flag.Float64("timefactor", 1, "simulated seconds per wall second")
	flag.Parse()

	n, err := network.LoadFile(*path)
	if err != nil {
		log.Fatalln("[HMI]", err)
	}
	defer n.Close()
	if err := n.SetTimeFactor(*factor); err != nil {
		log.Fatalln("[HMI]", err)
	}
	if !n.Start() {
		log.Fatalln("[HMI]", n.Validate())
	}
	defer n.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := hmi.New(n).Run(ctx); err != nil {
		log.Println("[HMI]", err)
	}
}
