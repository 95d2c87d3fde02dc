package monitor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gwillem/amber/pkg/actuator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRange_Normalize(t *testing.T) {
	r := Range{Min: 1000, Max: 3000, Set: true}

	tests := []struct {
		raw      float64
		expected float64
	}{
		{1000, -100.0}, // min -> -100
		{3000, 100.0},  // max -> 100
		{2000, 0.0},    // mid -> 0
		{1500, -50.0},  // quarter -> -50
		{2500, 50.0},   // three-quarter -> 50
	}

	for _, tt := range tests {
		got := r.Normalize(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Normalize(%f) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestRange_Denormalize(t *testing.T) {
	r := Range{Min: -500, Max: 1500, Set: true}

	tests := []struct {
		norm     float64
		expected float64
	}{
		{-100.0, -500},
		{100.0, 1500},
		{0.0, 500},
		{-50.0, 0},
		{50.0, 1000},
	}

	for _, tt := range tests {
		got := r.Denormalize(tt.norm)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Denormalize(%f) = %f, want %f", tt.norm, got, tt.expected)
		}
	}
}

func TestRange_RoundTrip(t *testing.T) {
	r := Range{Min: 823, Max: 3280, Set: true}

	for raw := r.Min; raw <= r.Max; raw += 37.5 {
		got := r.Denormalize(r.Normalize(raw))
		if math.Abs(got-raw) > 1e-9 {
			t.Errorf("RoundTrip(%f) = %f", raw, got)
		}
	}
}

func TestRange_Observe(t *testing.T) {
	var r Range
	if got := r.Normalize(42); got != 0 {
		t.Errorf("empty range Normalize = %f, want 0", got)
	}

	r.Observe(10)
	if r.Min != 10 || r.Max != 10 {
		t.Fatalf("after first Observe: %+v", r)
	}
	r.Observe(-30)
	r.Observe(50)
	r.Observe(0)
	if r.Min != -30 || r.Max != 50 {
		t.Errorf("range = [%f, %f], want [-30, 50]", r.Min, r.Max)
	}
}

type fakeSource struct {
	mu    sync.Mutex
	reads int
	fail  bool
}

func (f *fakeSource) Size() int { return 2 }

func (f *fakeSource) GetCvp(context.Context) (actuator.CVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.fail {
		return actuator.CVP{}, errors.New("axis 1 silent")
	}
	cvp := actuator.NewCVP(2)
	cvp.Position[0] = float64(f.reads)
	cvp.Position[1] = -float64(f.reads)
	return cvp, nil
}

func (f *fakeSource) ErrorCodes() []actuator.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return []actuator.ErrorCode{actuator.ErrorNone, actuator.ErrorCommunication}
	}
	return []actuator.ErrorCode{actuator.ErrorNone, actuator.ErrorNone}
}

func TestPollerPublishesLatest(t *testing.T) {
	src := &fakeSource{}
	p := NewPoller(src, 200)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	var last State
	require.Eventually(t, func() bool {
		select {
		case last = <-p.States():
		default:
		}
		return last.CVP.Len() == 2 && last.CVP.Position[0] >= 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, 100.0, last.Normalized[0])
	assert.Equal(t, -100.0, last.Normalized[1])
	assert.Error(t, p.Start(ctx))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	select {
	case msg := <-p.Logs():
		assert.Contains(t, msg, "Monitoring 2 axes at 200 Hz")
	default:
		t.Fatal("no log line")
	}
}

func TestPollerReportsErrors(t *testing.T) {
	src := &fakeSource{fail: true}
	p := NewPoller(src, 100)
	p.step(context.Background())

	s := <-p.States()
	require.Error(t, s.Error)
	assert.Equal(t, actuator.ErrorCommunication, s.Codes[1])
	assert.Contains(t, <-p.Logs(), "axis 1 silent")
}

func TestPublishKeepsOnlyNewest(t *testing.T) {
	p := NewPoller(&fakeSource{}, 0)
	assert.Equal(t, 30, p.Hz())

	for i := 0; i < 5; i++ {
		cvp := actuator.NewCVP(2)
		cvp.Position[0] = float64(i)
		p.Publish(cvp)
	}
	s := <-p.States()
	assert.Equal(t, 4.0, s.CVP.Position[0])
	assert.Equal(t, Range{Min: 0, Max: 4, Set: true}, p.Ranges()[0])

	select {
	case <-p.States():
		t.Fatal("stale state left in channel")
	default:
	}
}
