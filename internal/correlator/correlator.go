package correlator

import (
	"context"
	"errors"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/internal/models"
)

// ErrTimeout is returned by Waiter.Wait when no status arrived before the
// waiter's deadline.
var ErrTimeout = errors.New("timed out waiting for status")

// Waiter is one in-flight request awaiting a status report. It settles
// exactly once, either with a status or with ErrTimeout.
type Waiter struct {
	key   string
	timer *time.Timer
	done  chan struct{}
	once  sync.Once

	status models.Status
	err    error
}

func newWaiter(key string) *Waiter {
	return &Waiter{key: key, done: make(chan struct{})}
}

// Key returns the conversation key the waiter was registered under.
func (w *Waiter) Key() string {
	return w.key
}

// Done is closed once the waiter has settled.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the waiter settles or ctx is cancelled. Cancelling ctx
// does not settle the waiter.
func (w *Waiter) Wait(ctx context.Context) (models.Status, error) {
	select {
	case <-w.done:
		return w.status, w.err
	case <-ctx.Done():
		return models.Status{}, ctx.Err()
	}
}

// settle records the outcome if the waiter has not settled yet and reports
// whether this call won.
func (w *Waiter) settle(status models.Status, err error) bool {
	won := false
	w.once.Do(func() {
		w.status, w.err = status, err
		close(w.done)
		won = true
	})
	return won
}

// Correlator routes status reports from the single shared subscription back
// to the conversations waiting for them. The transport carries no addressing,
// so every valid report resolves every pending waiter.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Waiter
	logger  zerolog.Logger
}

// NewCorrelator creates a Correlator with no pending waiters.
func NewCorrelator(logger zerolog.Logger) *Correlator {
	return &Correlator{
		pending: make(map[string]*Waiter),
		logger:  logger,
	}
}

// Register arms a waiter for key that expires after timeout. A waiter already
// pending for key is dropped from the pending set without being resolved; its
// own deadline still rejects it with ErrTimeout.
func (c *Correlator) Register(key string, timeout time.Duration) *Waiter {
	w := newWaiter(key)

	c.mu.Lock()
	if _, exists := c.pending[key]; exists {
		c.logger.Debug().Str("key", key).Msg("Superseding pending status waiter")
	}
	c.pending[key] = w
	// Armed under the lock so Deliver never observes a waiter without a timer.
	w.timer = time.AfterFunc(timeout, func() { c.expire(w) })
	c.mu.Unlock()

	return w
}

// expire removes w if it is still the pending waiter for its key, then
// rejects it unless a delivery already resolved it.
func (c *Correlator) expire(w *Waiter) {
	c.mu.Lock()
	if current, ok := c.pending[w.key]; ok && current == w {
		delete(c.pending, w.key)
	}
	c.mu.Unlock()

	if w.settle(models.Status{}, ErrTimeout) {
		c.logger.Info().Str("key", w.key).Msg("Status wait timed out")
	}
}

// Deliver parses raw as a status report. Anything that is not a status is
// ignored. A valid report resolves every pending waiter with the same status
// and clears the pending set. It returns the number of waiters resolved.
func (c *Correlator) Deliver(raw []byte) int {
	status, err := models.ParseStatus(raw)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring non-status payload")
		return 0
	}

	c.mu.Lock()
	waiters := make([]*Waiter, 0, len(c.pending))
	for _, w := range c.pending {
		waiters = append(waiters, w)
	}
	c.pending = make(map[string]*Waiter)
	c.mu.Unlock()

	resolved := 0
	for _, w := range waiters {
		w.timer.Stop()
		if w.settle(status, nil) {
			resolved++
		}
	}

	c.logger.Info().Int("waiters", resolved).Interface("status", status.Fields).Msg("Status received")
	return resolved
}

// HandleMessage is an MQTT message handler feeding Deliver.
func (c *Correlator) HandleMessage(_ MQTT.Client, msg MQTT.Message) {
	c.Deliver(msg.Payload())
}

// Pending returns the number of registered waiters that have not settled.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
