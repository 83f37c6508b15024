package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"granary/internal/engine"
	"granary/internal/logging"
	"granary/source/kafka"
	_ "granary/store/postgres"
)

func main() {
	specPath := flag.String("config", "connector.yml", "path to the connector spec")
	grpcPort := flag.Int("grpc-port", 7070, "control-plane port")
	metricsPort := flag.Int("metrics-port", 9100, "prometheus port")
	flag.Parse()

	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	kafka.Register("sarama", func() kafka.Adapter { return &kafka.SaramaDriver{} })

	e, err := engine.Bootstrap(ctx, engine.Config{
		GRPCPort:    *grpcPort,
		MetricsPort: *metricsPort,
		SpecPath:    *specPath,
	})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	if err := e.Run(ctx); err != nil {
		log.Fatalf("connector: %v", err)
	}
}
