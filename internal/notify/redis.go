package notify

import (
	"context"
	"encoding/json"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/goforbroke1006/stagechain"
	"github.com/goforbroke1006/stagechain/internal/logging"
)

// Redis mirrors notifications into Redis: the current state of a channel lives in the
// hash {prefix}channel:{id} and every change is announced on {prefix}events.
type Redis struct {
	client  *backend.Client
	prefix  string
	timeout time.Duration
	logger  *logging.Logger
}

var _ stagechain.Notifier = (*Redis)(nil)

type Option func(*Redis)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTimeout bounds every Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(r *Redis) {
		r.timeout = d
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Redis) {
		r.logger = l
	}
}

// Event is the message published on the events channel.
type Event struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
}

func NewRedis(client *backend.Client, opts ...Option) *Redis {
	r := &Redis{
		client:  client,
		prefix:  "stagechain:",
		timeout: time.Second,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("redis-notifier")
	return r
}

func (r *Redis) ChannelKey(channelID string) string {
	return r.prefix + "channel:" + channelID
}

func (r *Redis) EventsChannel() string {
	return r.prefix + "events"
}

func (r *Redis) UpdateStatus(channelID, text string) {
	r.write(Event{Type: "status", ChannelID: channelID, Text: text}, func(ctx context.Context, pipe backend.Pipeliner) {
		pipe.HSet(ctx, r.ChannelKey(channelID), "text", text)
	})
}

func (r *Redis) ShowPersistent(channelID, title, text string) {
	r.write(Event{Type: "show", ChannelID: channelID, Title: title, Text: text}, func(ctx context.Context, pipe backend.Pipeliner) {
		pipe.HSet(ctx, r.ChannelKey(channelID), "title", title, "text", text)
	})
}

func (r *Redis) Clear(channelID string) {
	r.write(Event{Type: "clear", ChannelID: channelID}, func(ctx context.Context, pipe backend.Pipeliner) {
		pipe.Del(ctx, r.ChannelKey(channelID))
	})
}

// write applies the state change and publishes the event in one pipeline. Notifier calls
// have no error path, so failures are only logged.
func (r *Redis) write(ev Event, apply func(ctx context.Context, pipe backend.Pipeliner)) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to marshal notification", "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	pipe := r.client.Pipeline()
	apply(ctx, pipe)
	pipe.Publish(ctx, r.EventsChannel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("failed to write notification", "channel_id", ev.ChannelID, "type", ev.Type, "error", err.Error())
	}
}
