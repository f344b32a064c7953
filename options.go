package stagechain

import (
	"context"
	"time"

	"github.com/goforbroke1006/stagechain/internal/logging"
)

const (
	DefaultPollInterval = time.Second
	DefaultTickInterval = time.Second

	DefaultPersistentTitle = "Third worker process is done"
	DefaultPersistentText  = "Final countdown starting!"
	DefaultStatusFormat    = "%d seconds until final warning"
)

// Option configures a Chain or a Countdown. Options that do not apply to the
// component they are passed to are ignored.
type Option func(*options)

type options struct {
	logger *logging.Logger

	// chain
	pollInterval time.Duration
	work         StageFn
	onChanges    OnChangedCb

	// countdown
	tickInterval    time.Duration
	channelID       func(terminalID string) string
	persistentTitle string
	persistentText  string
	notices         map[string][2]string
	statusFormat    string
	onTick          func(channelID string, st CountdownState)
	onPublish       func(key string)
}

func defaultOptions() options {
	return options{
		logger:          logging.NopLogger(),
		pollInterval:    DefaultPollInterval,
		work:            func(context.Context, StageRequest) error { return nil },
		tickInterval:    DefaultTickInterval,
		channelID:       func(terminalID string) string { return terminalID },
		persistentTitle: DefaultPersistentTitle,
		persistentText:  DefaultPersistentText,
		statusFormat:    DefaultStatusFormat,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPollInterval sets how often a closed gate is re-evaluated.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithWork sets the work every chain stage runs; the request carries the stage kind.
func WithWork(fn StageFn) Option {
	return func(o *options) {
		if fn != nil {
			o.work = fn
		}
	}
}

// WithOnChanges sets the hook that receives every transition of chain and countdown stages.
func WithOnChanges(cb OnChangedCb) Option {
	return func(o *options) { o.onChanges = cb }
}

// WithTickInterval sets the countdown step duration.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithChannelID maps a terminal id to the notifier channel its countdown uses.
func WithChannelID(fn func(terminalID string) string) Option {
	return func(o *options) {
		if fn != nil {
			o.channelID = fn
		}
	}
}

func WithPersistentNotice(title, text string) Option {
	return func(o *options) {
		o.persistentTitle = title
		o.persistentText = text
	}
}

// WithNoticeFor overrides the persistent notice for countdowns of one terminal id.
func WithNoticeFor(terminalID, title, text string) Option {
	return func(o *options) {
		if o.notices == nil {
			o.notices = map[string][2]string{}
		}
		o.notices[terminalID] = [2]string{title, text}
	}
}

// WithStatusFormat sets the per-tick status text; it receives the remaining ticks.
func WithStatusFormat(format string) Option {
	return func(o *options) {
		if format != "" {
			o.statusFormat = format
		}
	}
}

func WithOnTick(fn func(channelID string, st CountdownState)) Option {
	return func(o *options) { o.onTick = fn }
}

func WithOnPublish(fn func(key string)) Option {
	return func(o *options) { o.onPublish = fn }
}
