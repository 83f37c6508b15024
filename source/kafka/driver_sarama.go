package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"granary/internal/logging"
)

type SaramaDriver struct {
	cfg  Config
	mode CommitMode

	cl    sarama.Client
	group sarama.ConsumerGroup

	drain        func(context.Context) error
	lastCommitNS atomic.Int64
}

func (d *SaramaDriver) Configure(config Config) error {
	d.cfg, d.mode = config, config.CommitMode

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

// BindDrain wires the sink's drain wait, used by the e2e commit mode.
func (d *SaramaDriver) BindDrain(fn func(context.Context) error) { d.drain = fn }

func (d *SaramaDriver) Run(ctx context.Context, emit EmitBatch) error {
	handler := &groupHandler{driver: d, emit: emit}

	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	_ = d.group.Close()
	return d.cl.Close()
}

// commitDue rate-limits offset flushes to the configured cadence.
func (d *SaramaDriver) commitDue() bool {
	now := time.Now().UnixNano()
	last := d.lastCommitNS.Load()
	if last+d.cfg.Checkpoint.CommitInt.Nanoseconds() > now {
		return false
	}
	return d.lastCommitNS.CompareAndSwap(last, now)
}

type groupHandler struct {
	driver *SaramaDriver
	emit   EmitBatch
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	b := newBatcher(h.driver.cfg.Batch.Size)
	linger := h.driver.cfg.Batch.Linger
	timer := time.NewTimer(linger)
	defer timer.Stop()

	flush := func() error {
		if b.len() == 0 {
			return nil
		}
		recs, msgs := b.take()
		if err := h.emit(sess.Context(), recs); err != nil {
			return err
		}
		if h.driver.mode == CommitE2E && h.driver.drain != nil {
			if err := h.driver.drain(sess.Context()); err != nil {
				return err
			}
		}
		for _, m := range msgs {
			sess.MarkMessage(m, "")
		}
		if h.driver.commitDue() {
			sess.Commit()
		}
		logging.L().Debug("sarama-driver: batch flushed",
			"topic", claim.Topic(), "partition", claim.Partition(), "count", len(recs))
		return nil
	}

	for {
		select {
		case <-sess.Context().Done():
			_ = flush()
			return sess.Context().Err()

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
			timer.Reset(linger)

		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			if b.add(msg) {
				if err := flush(); err != nil {
					return err
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(linger)
			}
		}
	}
}
