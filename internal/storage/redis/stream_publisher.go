package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"binary-comp-engine/internal/events"
)

// DefaultStream is the stream events are appended to.
const DefaultStream = "binary:events"

// StreamPublisher appends events to a Redis stream with XADD.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher. maxLen > 0 trims the stream approximately.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Compile-time interface check.
var _ events.Publisher = (*StreamPublisher)(nil)

// Publish implements events.Publisher.
func (p *StreamPublisher) Publish(ctx context.Context, e events.Event) error {
	values := map[string]any{
		"type":           string(e.Type),
		"participant_id": e.ParticipantID,
		"occurred_at":    strconv.FormatInt(e.OccurredAt, 10),
	}
	for k, v := range e.Fields {
		values["f:"+k] = v
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", e.Type, err)
	}
	return nil
}

// ReadAll returns every event in the stream, oldest first.
func (p *StreamPublisher) ReadAll(ctx context.Context) ([]events.Event, error) {
	msgs, err := p.client.XRange(ctx, p.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}

	out := make([]events.Event, 0, len(msgs))
	for _, m := range msgs {
		e := events.Event{Fields: make(map[string]string)}
		for k, raw := range m.Values {
			v := fmt.Sprint(raw)
			switch {
			case k == "type":
				e.Type = events.Type(v)
			case k == "participant_id":
				e.ParticipantID = v
			case k == "occurred_at":
				e.OccurredAt, _ = strconv.ParseInt(v, 10, 64)
			default:
				if name, ok := strings.CutPrefix(k, "f:"); ok {
					e.Fields[name] = v
				}
			}
		}
		out = append(out, e)
	}
	return out, nil
}
