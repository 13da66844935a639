package device

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/shell"
)

const DefaultInterval = time.Second

type PollerOption func(*Poller)

// WithInterval sets the delay between polls.
func WithInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = interval
	}
}

// WithCPU selects the core whose current frequency is read.
func WithCPU(cpu int) PollerOption {
	return func(p *Poller) {
		p.freqPath = CurFreqPath(cpu)
	}
}

// WithThermalZone selects the thermal zone whose temperature is read.
func WithThermalZone(zone int) PollerOption {
	return func(p *Poller) {
		p.tempPath = ThermalTempPath(zone)
	}
}

func WithPollerLogger(log logger.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = log
	}
}

// Poller periodically reads frequency and temperature through an
// Executor and publishes the latest Reading to subscribers.
type Poller struct {
	exec     shell.Executor
	interval time.Duration
	freqPath string
	tempPath string
	logger   logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	latest  Reading
	subs    map[int]chan Reading
	nextSub int
	running bool
}

func NewPoller(exec shell.Executor, opts ...PollerOption) *Poller {
	p := &Poller{
		exec:     exec,
		interval: DefaultInterval,
		freqPath: CurFreqPath(0),
		tempPath: ThermalTempPath(0),
		logger:   logger.Default(),
		now:      time.Now,
		subs:     make(map[int]chan Reading),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Latest returns the most recently published reading.
func (p *Poller) Latest() Reading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Subscribe returns a channel receiving published readings. The channel
// holds only the newest unread reading. It is closed when Run returns or
// when the returned cancel func is called.
func (p *Poller) Subscribe() (<-chan Reading, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan Reading, 1)
	p.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Run polls until ctx is cancelled. Cancellation is observed between
// polls; a read already in flight runs to completion. Subscriptions are
// closed when Run returns, except when it fails with ErrPollerRunning:
// those belong to the Run already in progress.
func (p *Poller) Run(ctx context.Context) error {
	errFactory := errors.New()

	if p.interval <= 0 {
		p.closeSubscribers()
		return errFactory.WithData(ErrInvalidInterval, p.interval.String())
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errFactory.New(ErrPollerRunning)
	}
	p.running = true
	p.mu.Unlock()

	defer p.closeSubscribers()

	p.logger.Debug().
		Str("frequency_path", p.freqPath).
		Str("temperature_path", p.tempPath).
		Dur("interval", p.interval).
		Msg("Poller started")

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Poller stopped")
			return nil
		case <-timer.C:
		}

		if ctx.Err() != nil {
			p.logger.Debug().Msg("Poller stopped")
			return nil
		}

		p.publish(p.Poll(context.WithoutCancel(ctx)))
		timer.Reset(p.interval)
	}
}

// Poll performs one frequency read followed by one temperature read.
func (p *Poller) Poll(ctx context.Context) Reading {
	reading := Reading{Timestamp: p.now()}

	if result := p.exec.Execute(ctx, ReadCommand(p.freqPath)); result.Succeeded {
		reading.CPUFrequencyMHz, reading.CPUFrequencyOK = ParseFrequencyMHz(result.Output)
		if !reading.CPUFrequencyOK {
			p.logParseFailure(p.freqPath, result.Output)
		}
	}

	if result := p.exec.Execute(ctx, ReadCommand(p.tempPath)); result.Succeeded {
		reading.TemperatureC, reading.TemperatureOK = ParseTemperatureC(result.Output)
		if !reading.TemperatureOK {
			p.logParseFailure(p.tempPath, result.Output)
		}
	}

	return reading
}

func (p *Poller) logParseFailure(path, raw string) {
	p.logger.Debug().
		Str("error_code", string(ErrParseFailure)).
		Str("path", path).
		Str("raw", raw).
		Msg("Unparseable pseudo-file content")
}

func (p *Poller) publish(reading Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = reading
	for _, ch := range p.subs {
		// Drop the stale reading so the newest one always fits.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- reading:
		default:
		}
	}
}

func (p *Poller) closeSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.running = false
}
