package stagechain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goforbroke1006/stagechain/internal/logging"
)

// Countdown runs blocking, time-stepped countdown stages. Each run pushes its progress
// to the notifier on every tick and publishes its terminal id to the registry once.
type Countdown struct {
	registry *Registry[string]
	notifier Notifier
	logger   *logging.Logger

	interval        time.Duration
	channelID       func(terminalID string) string
	persistentTitle string
	persistentText  string
	notices         map[string][2]string
	statusFormat    string
	onTick          func(channelID string, st CountdownState)
	onPublish       func(key string)
	onChanges       OnChangedCb

	mu       sync.Mutex
	channels map[string]chan struct{}
}

func NewCountdown(registry *Registry[string], notifier Notifier, opts ...Option) *Countdown {
	o := buildOptions(opts)
	return &Countdown{
		registry:        registry,
		notifier:        notifier,
		logger:          o.logger.WithComponent("countdown"),
		interval:        o.tickInterval,
		channelID:       o.channelID,
		persistentTitle: o.persistentTitle,
		persistentText:  o.persistentText,
		notices:         o.notices,
		statusFormat:    o.statusFormat,
		onTick:          o.onTick,
		onPublish:       o.onPublish,
		onChanges:       o.onChanges,
		channels:        map[string]chan struct{}{},
	}
}

// Start launches a countdown from totalTicks to zero on its own goroutine and returns
// its running stage. Cancelling the stage (or ctx) stops the loop at the next tick
// boundary; the stage then fails and nothing is published.
func (c *Countdown) Start(ctx context.Context, terminalID string, totalTicks int) (*Stage, error) {
	if totalTicks < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTicks, totalTicks)
	}
	req, err := NewStageRequest(CountdownKind, terminalID, nil)
	if err != nil {
		return nil, err
	}

	channel := c.channelID(terminalID)
	slot := c.slot(channel)
	logger := c.logger.WithChannel(channel)

	// acquired is written by the work and read by after, both on the stage goroutine.
	acquired := false
	work := func(ctx context.Context, req StageRequest) error {
		select {
		case slot <- struct{}{}:
			acquired = true
		case <-ctx.Done():
			return ErrCountdownInterrupted
		}
		return c.run(ctx, channel, req.InputID(), totalTicks, logger)
	}

	st := newStage(req, work, logger)
	st.after = func() {
		if acquired {
			c.notifier.Clear(channel)
			<-slot
		}
	}

	if c.onChanges != nil {
		st.Stream().Observe(c.onChanges)
	}

	if err := st.start(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Countdown) run(ctx context.Context, channel, terminalID string, totalTicks int, logger *logging.Logger) error {
	title, text := c.persistentTitle, c.persistentText
	if notice, ok := c.notices[terminalID]; ok {
		title, text = notice[0], notice[1]
	}
	c.notifier.ShowPersistent(channel, title, text)

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	st := CountdownState{Remaining: totalTicks, TerminalID: terminalID}
	for ; st.Remaining >= 0; st.Remaining-- {
		select {
		case <-ctx.Done():
			logger.Warn("countdown interrupted", "remaining", st.Remaining)
			return ErrCountdownInterrupted
		case <-timer.C:
		}
		// both cases may be ready at once
		if ctx.Err() != nil {
			logger.Warn("countdown interrupted", "remaining", st.Remaining)
			return ErrCountdownInterrupted
		}

		c.notifier.UpdateStatus(channel, fmt.Sprintf(c.statusFormat, st.Remaining))
		if c.onTick != nil {
			c.onTick(channel, st)
		}
		timer.Reset(c.interval)
	}

	if err := c.registry.Publish(terminalID, terminalID); err != nil {
		return err
	}
	if c.onPublish != nil {
		c.onPublish(terminalID)
	}
	logger.Info("countdown completed", "terminal_id", terminalID)
	return nil
}

// slot returns the semaphore serializing countdowns on one channel.
func (c *Countdown) slot(channel string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.channels[channel]
	if !ok {
		s = make(chan struct{}, 1)
		c.channels[channel] = s
	}
	return s
}
