// Package live turns committed store changes into streams of full result
// snapshots for subscribers.
package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Gauge tracks the number of open subscriptions.
type Gauge interface {
	Inc()
	Dec()
}

// Hub fans out change signals to subscribers of a topic. Signals carry no
// payload; subscribers re-query the store when they receive one.
type Hub struct {
	pubsub *gochannel.GoChannel
	active Gauge
}

// NewHub creates a hub. active may be nil.
func NewHub(active Gauge) *Hub {
	return &Hub{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, &slogAdapter{log: slog.Default()}),
		active: active,
	}
}

// ItemsTopic is signalled whenever an item owned by userID changes.
func ItemsTopic(userID string) string {
	return "items." + userID
}

// SwapsTopic is signalled whenever a swap request involving userID changes.
func SwapsTopic(userID string) string {
	return "swaps." + userID
}

// Notify signals a change on each topic. It must be called after the change
// is committed.
func (h *Hub) Notify(topics ...string) {
	for _, topic := range topics {
		if err := h.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), nil)); err != nil {
			slog.Warn("publishing change signal", "topic", topic, "error", err)
		}
	}
}

func (h *Hub) subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := h.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return ch, nil
}

// Close stops the hub and closes every subscription's signal channel.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}

// slogAdapter bridges slog to watermill.LoggerAdapter.
type slogAdapter struct{ log *slog.Logger }

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(fieldsToArgs(fields), "error", err)...)
}
func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{log: a.log.With(fieldsToArgs(fields)...)}
}

func fieldsToArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
