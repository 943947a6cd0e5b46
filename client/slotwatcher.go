package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/common"
)

// DefaultSlotPollInterval is the watcher's poll period when the caller
// does not pick one. The cluster produces a slot roughly every 400ms,
// so polling once a second stays within one or two slots of the tip.
const DefaultSlotPollInterval = time.Second

type slotQuery func(ctx context.Context) (uint64, error)

// SlotWatcher keeps a cached view of the cluster's latest slot by
// polling getSlot periodically. LatestSlot never touches the network.
type SlotWatcher struct {
	interval time.Duration
	query    slotQuery // for ease of testing
	logger   *zap.Logger

	quit chan struct{}
	wg   sync.WaitGroup

	mu        sync.RWMutex
	slot      uint64
	updatedAt time.Time
}

// NewSlotWatcher builds a watcher polling at interval (the default
// period when zero or negative) at the given commitment. Call Start to
// begin polling.
func (c *Client) NewSlotWatcher(interval time.Duration, commitment solwire.Commitment) *SlotWatcher {
	if interval <= 0 {
		interval = DefaultSlotPollInterval
	}
	return &SlotWatcher{
		interval: interval,
		query: func(ctx context.Context) (uint64, error) {
			return c.GetSlot(ctx, commitment)
		},
		logger: c.logger.Named("slotwatcher"),
	}
}

// LatestSlot returns the last slot the watcher observed and when it
// observed it. Both are zero until a poll has succeeded.
func (w *SlotWatcher) LatestSlot() (uint64, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.slot, w.updatedAt
}

func (w *SlotWatcher) updateSlot() {
	slot, err := w.query(context.Background())
	if err != nil {
		w.logger.Warn("slot poll failed", zap.Error(err))
		return
	}
	w.mu.Lock()
	// Lagging or recently failed-over nodes can answer with an older
	// slot; the cached value never moves backwards.
	if slot > w.slot {
		w.slot = slot
		w.updatedAt = time.Now()
	}
	w.mu.Unlock()
}

// Start polls once synchronously, so callers have a slot right away,
// and then keeps polling in the background until Stop.
func (w *SlotWatcher) Start() {
	w.quit = make(chan struct{})
	w.updateSlot()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer common.LogOnPanic(w.logger)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.updateSlot()
			case <-w.quit:
				return
			}
		}
	}()
}

// Stop ends the background polling and waits for it to exit. Safe to
// call without a prior Start.
func (w *SlotWatcher) Stop() {
	if w.quit == nil {
		return
	}
	close(w.quit)
	w.wg.Wait()
}
