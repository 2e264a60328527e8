package decoder

import (
	"context"
	"sync"
	"time"
)

// BackpressureMetrics mirrors original_source/streaming/backpressure.py's
// BackpressureManager.get_stats fields the RPC surface may consult
// (spec §5 "Backpressure").
type BackpressureMetrics struct {
	BufferedCount  int
	PressureEvents int64
	TotalWaitTime  time.Duration
}

// backpressureController slows the decoder's read loop when its output
// channel nears capacity, waiting longer the more persistently pressure
// recurs and decaying back down once it abates (spec §5).
type backpressureController struct {
	maxBufferSize     int
	pressureThreshold float64
	maxWaitTime       time.Duration
	backoffFactor     float64

	mu              sync.Mutex
	currentWaitTime time.Duration
	underPressure   bool
	metrics         BackpressureMetrics
}

func newBackpressureController(maxBufferSize int) *backpressureController {
	return &backpressureController{
		maxBufferSize:     maxBufferSize,
		pressureThreshold: 0.8,
		maxWaitTime:       5 * time.Second,
		backoffFactor:     1.5,
		currentWaitTime:   100 * time.Millisecond,
	}
}

// checkAndWait records the current output-queue depth and, if it exceeds
// the pressure threshold, sleeps for an exponentially growing interval
// before returning (so Run yields before issuing its next read). Pressure
// below the threshold decays the wait time back toward its floor.
func (b *backpressureController) checkAndWait(ctx context.Context, bufferSize int) {
	wait := b.observe(bufferSize)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (b *backpressureController) observe(bufferSize int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.BufferedCount = bufferSize
	pressure := b.pressureLevelLocked(bufferSize)
	if pressure <= b.pressureThreshold {
		b.release()
		return 0
	}

	if !b.underPressure {
		b.underPressure = true
		b.metrics.PressureEvents++
	}

	wait := time.Duration(float64(b.currentWaitTime) * (pressure / b.pressureThreshold))
	if wait > b.maxWaitTime {
		wait = b.maxWaitTime
	}
	b.currentWaitTime = time.Duration(float64(b.currentWaitTime) * b.backoffFactor)
	if b.currentWaitTime > b.maxWaitTime {
		b.currentWaitTime = b.maxWaitTime
	}
	b.metrics.TotalWaitTime += wait
	return wait
}

// release resets pressure state and decays the wait time by 10% rather
// than dropping it to the floor immediately, so a flapping producer
// doesn't thrash between the floor and a fresh backoff on every message.
func (b *backpressureController) release() {
	b.underPressure = false
	b.currentWaitTime = time.Duration(float64(b.currentWaitTime) * 0.9)
	if b.currentWaitTime < 100*time.Millisecond {
		b.currentWaitTime = 100 * time.Millisecond
	}
}

func (b *backpressureController) pressureLevelLocked(bufferSize int) float64 {
	if b.maxBufferSize == 0 {
		return 0
	}
	return float64(bufferSize) / float64(b.maxBufferSize)
}

func (b *backpressureController) stats() BackpressureMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}
