// Package monitor samples group feedback at a fixed rate and publishes it
// for display.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/amber/pkg/actuator"
)

// Source is what the poller reads from.
type Source interface {
	Size() int
	GetCvp(ctx context.Context) (actuator.CVP, error)
	ErrorCodes() []actuator.ErrorCode
}

// State is one published sample.
type State struct {
	CVP actuator.CVP
	// Normalized holds each position scaled into [-100, 100] over the range
	// seen so far.
	Normalized []float64
	Codes      []actuator.ErrorCode
	Timestamp  time.Time
	Error      error
}

// Poller publishes feedback on a channel that always holds the latest
// state, and log lines on a channel that drops when full.
type Poller struct {
	src Source
	hz  int

	mu      sync.RWMutex
	ranges  []Range
	running bool
	stateCh chan State
	logCh   chan string
}

// NewPoller creates a poller reading src hz times per second.
func NewPoller(src Source, hz int) *Poller {
	if hz <= 0 {
		hz = 30
	}
	return &Poller{
		src:     src,
		hz:      hz,
		ranges:  make([]Range, src.Size()),
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns a channel that receives state updates.
func (p *Poller) States() <-chan State {
	return p.stateCh
}

// Logs returns a channel that receives log messages.
func (p *Poller) Logs() <-chan string {
	return p.logCh
}

// Hz returns the sampling rate.
func (p *Poller) Hz() int {
	return p.hz
}

// Ranges returns a copy of the position range seen on each axis.
func (p *Poller) Ranges() []Range {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Range(nil), p.ranges...)
}

// Logf queues a timestamped log line.
func (p *Poller) Logf(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case p.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start samples until ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("already running")
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.Logf("Monitoring %d axes at %d Hz", p.src.Size(), p.hz)

	ticker := time.NewTicker(time.Second / time.Duration(p.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.step(ctx)
		}
	}
}

func (p *Poller) step(ctx context.Context) {
	cvp, err := p.src.GetCvp(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.Logf("Read error: %v", err)
		p.send(State{Error: err, Codes: p.src.ErrorCodes(), Timestamp: time.Now()})
		return
	}
	p.Publish(cvp)
}

// Publish pushes cvp as the latest state. Sequences that already read
// feedback every tick use it instead of a second polling loop.
func (p *Poller) Publish(cvp actuator.CVP) {
	p.mu.Lock()
	if len(p.ranges) != cvp.Len() {
		p.ranges = make([]Range, cvp.Len())
	}
	norm := make([]float64, cvp.Len())
	for i, pos := range cvp.Position {
		p.ranges[i].Observe(pos)
		norm[i] = p.ranges[i].Normalize(pos)
	}
	p.mu.Unlock()

	p.send(State{
		CVP:        cvp.Clone(),
		Normalized: norm,
		Codes:      p.src.ErrorCodes(),
		Timestamp:  time.Now(),
	})
}

func (p *Poller) send(s State) {
	select {
	case p.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-p.stateCh:
		default:
		}
		select {
		case p.stateCh <- s:
		default:
		}
	}
}
