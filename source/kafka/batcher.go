package kafka

import (
	"github.com/IBM/sarama"

	"granary/internal/record"
)

// batcher accumulates claim messages until the size threshold is reached; the
// claim loop owns the linger timer and calls take when it fires.
type batcher struct {
	max  int
	recs []record.Record
	msgs []*sarama.ConsumerMessage
}

func newBatcher(max int) *batcher {
	return &batcher{
		max:  max,
		recs: make([]record.Record, 0, max),
		msgs: make([]*sarama.ConsumerMessage, 0, max),
	}
}

// add buffers one message and reports whether the batch is now full.
func (b *batcher) add(msg *sarama.ConsumerMessage) bool {
	b.recs = append(b.recs, record.Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Ts:        msg.Timestamp,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   toHeaderMap(msg.Headers),
	})
	b.msgs = append(b.msgs, msg)
	return len(b.recs) >= b.max
}

func (b *batcher) len() int { return len(b.recs) }

// take returns the buffered batch and resets the buffers.
func (b *batcher) take() ([]record.Record, []*sarama.ConsumerMessage) {
	recs, msgs := b.recs, b.msgs
	b.recs = make([]record.Record, 0, b.max)
	b.msgs = make([]*sarama.ConsumerMessage, 0, b.max)
	return recs, msgs
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}
