package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// tickStep is the granularity of the cooperative sleep between consolidation
// runs: the worker wakes this often to check for a stop signal.
const tickStep = time.Minute

// Start launches the background consolidation worker. Exactly one worker
// runs per Consolidator; starting an already-running service is a no-op.
func (c *Consolidator) Start() {
	c.svcMu.Lock()
	defer c.svcMu.Unlock()

	if c.running {
		log.Warn().Msg("consolidation service already running")
		return
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.running = true
	go c.runLoop(c.stopCh, c.doneCh)
	log.Info().Dur("interval", c.cfg.Interval).Msg("consolidation service started")
}

// Stop signals the worker to exit and waits for it, bounded by the
// configured stop timeout. Stopping an already-stopped service is a no-op.
func (c *Consolidator) Stop() {
	c.svcMu.Lock()
	defer c.svcMu.Unlock()

	if !c.running {
		return
	}
	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(c.cfg.StopTimeout):
		log.Warn().Msg("consolidation worker did not exit within stop timeout")
	}
	c.running = false
	log.Info().Msg("consolidation service stopped")
}

// Running reports whether the background worker is active.
func (c *Consolidator) Running() bool {
	c.svcMu.Lock()
	defer c.svcMu.Unlock()
	return c.running
}

// runLoop runs consolidation batches forever, sleeping the configured
// interval in small increments so a stop signal is honored promptly. A
// failed iteration backs off for a fixed period instead of crashing the
// worker.
func (c *Consolidator) runLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		if err := c.runOnce(stopCh); err != nil {
			log.Error().Err(err).Msg("consolidation loop iteration failed")
			if !sleepInterruptible(c.cfg.ErrorBackoff, stopCh) {
				return
			}
			continue
		}
		if !sleepSteps(c.cfg.Interval, stopCh) {
			return
		}
	}
}

// runOnce executes one consolidation batch, converting panics into errors so
// a misbehaving detector cannot kill the worker.
func (c *Consolidator) runOnce(stopCh <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	select {
	case <-stopCh:
		return nil
	default:
	}

	c.ConsolidateAll(context.Background())
	return nil
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("consolidation panicked: %v", e.value) }

// sleepSteps sleeps d in tickStep increments, returning false if the stop
// channel closed.
func sleepSteps(d time.Duration, stopCh <-chan struct{}) bool {
	remaining := d
	for remaining > 0 {
		step := tickStep
		if remaining < step {
			step = remaining
		}
		if !sleepInterruptible(step, stopCh) {
			return false
		}
		remaining -= step
	}
	return true
}

// sleepInterruptible sleeps for d, returning false if the stop channel
// closed first.
func sleepInterruptible(d time.Duration, stopCh <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}
