package convert

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"granary/internal/record"
)

// envelope is the canonical wire shape written into the destination's payload
// column. Values that are not valid UTF-8 travel base64-encoded with the
// encoding marked, so the round trip is lossless.
type envelope struct {
	Topic     string            `json:"topic"`
	Partition int32             `json:"partition"`
	Offset    int64             `json:"offset"`
	Ts        time.Time         `json:"ts"`
	Key       string            `json:"key,omitempty"`
	Value     string            `json:"value"`
	Encoding  string            `json:"encoding,omitempty"` // "base64" when set
	Headers   map[string]string `json:"headers,omitempty"`
}

// ToWire encodes one record as the JSON text payload the write plans bind.
func ToWire(r record.Record) (string, error) {
	env := envelope{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Ts:        r.Ts.UTC(),
	}
	if utf8.Valid(r.Value) {
		env.Value = string(r.Value)
	} else {
		env.Value = base64.StdEncoding.EncodeToString(r.Value)
		env.Encoding = "base64"
	}
	if len(r.Key) > 0 {
		if utf8.Valid(r.Key) {
			env.Key = string(r.Key)
		} else {
			env.Key = base64.StdEncoding.EncodeToString(r.Key)
		}
	}
	if len(r.Headers) > 0 {
		env.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			env.Headers[k] = string(v)
		}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("convert: encode %s[%d]@%d: %w", r.Topic, r.Partition, r.Offset, err)
	}
	return string(raw), nil
}
