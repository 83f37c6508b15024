package engine

import (
	"context"
	"fmt"
	"time"

	"granary/internal/config"
	"granary/internal/sink"
	"granary/internal/telemetry"
	"granary/internal/transport"
	"granary/source/kafka"
	"granary/store"
)

type Config struct {
	GRPCPort    int
	MetricsPort int
	SpecPath    string
}

const defaultDrainTimeout = 30 * time.Second

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	specFile, srcPath, storePath, err := config.LoadConnectorSpec(cfg.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("connector spec: %w", err)
	}
	if specFile.Source.Kind != "kafka" {
		return nil, fmt.Errorf("unsupported source %q", specFile.Source.Kind)
	}
	if specFile.Store.Kind != "postgres" {
		return nil, fmt.Errorf("unsupported store %q", specFile.Store.Kind)
	}

	// 1. store session
	storeCfg, err := config.LoadStoreConfig(storePath)
	if err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}
	drv, err := store.NewDriver(specFile.Store.Driver)
	if err != nil {
		return nil, err
	}
	if err := drv.Configure(storeCfg); err != nil {
		return nil, err
	}
	sess, err := drv.Open(ctx)
	if err != nil {
		return nil, err
	}

	// 2. source config decides the assignment
	kc, err := config.LoadKafkaConfig(srcPath)
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("kafka config: %w", err)
	}
	tableFor := sink.NewTableMapper(specFile.Writer.TableMap)
	tables := requiredTables(kc.Topics, tableFor)

	// 3. validate the catalog once, then compile one plan per destination
	if err := sink.ValidateCatalog(ctx, sess, tables); err != nil {
		_ = sess.Close()
		return nil, err
	}
	cache, err := sink.BuildPlanCache(ctx, sess, tables)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	w := sink.NewWriter(cache, sink.Options{
		MaxInFlight: int64(specFile.Writer.MaxInFlight),
		TableFor:    tableFor,
	})

	// 4. source driver
	src, err := kafka.NewAdapter(specFile.Source.Driver)
	if err != nil {
		_ = w.Close()
		_ = sess.Close()
		return nil, err
	}
	if err := src.Configure(kc); err != nil {
		_ = w.Close()
		_ = sess.Close()
		return nil, fmt.Errorf("source: %w", err)
	}
	// The drain waits on the writer's global in-flight count, not on the
	// flushing partition's own writes; under sustained load on other
	// partitions a commit can therefore lag until the writer next goes idle.
	if da, ok := src.(kafka.DrainAware); ok && kc.CommitMode == kafka.CommitE2E {
		da.BindDrain(w.WaitIdle)
	}

	// 5. control plane + metrics
	srv, err := transport.StartServer(cfg.GRPCPort)
	if err != nil {
		_ = src.Close()
		_ = w.Close()
		_ = sess.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}
	telemetry.Expose(cfg.MetricsPort)

	drain := defaultDrainTimeout
	if specFile.Writer.DrainTimeoutMS > 0 {
		drain = time.Duration(specFile.Writer.DrainTimeoutMS) * time.Millisecond
	}
	return &Engine{
		transport:    srv,
		source:       src,
		writer:       w,
		session:      sess,
		drainTimeout: drain,
	}, nil
}

func requiredTables(topics []string, tableFor sink.TableFor) []string {
	seen := make(map[string]struct{}, len(topics))
	var out []string
	for _, topic := range topics {
		t := tableFor(topic)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
