package record

import "time"

// Record is one unit of data pulled from the source and bound for a single
// destination table. The sink only ever reads it.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Ts        time.Time
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
}
