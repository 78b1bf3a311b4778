/*
scheduler.go - Vendor notification retry scheduler

PURPOSE:
  Dispatch tries the vendor once, inline. Whatever is left pending (vendor
  down, webhook timing out) is retried here until it is delivered or goes
  dead after the retry policy's attempts.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick flushes due rows through allocation.Outbox
  - Backoff per row is stored with the row, so restarts lose nothing

USAGE:
  scheduler := NewNotificationScheduler(outbox, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - allocation/notify.go: Outbox, RetryPolicy
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/config"
)

// NotificationScheduler periodically flushes the vendor outbox.
type NotificationScheduler struct {
	Outbox        *allocation.Outbox
	Logger        *logrus.Logger
	CheckInterval time.Duration
	BatchSize     int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewNotificationScheduler(outbox *allocation.Outbox, logger *logrus.Logger) *NotificationScheduler {
	return &NotificationScheduler{
		Outbox:        outbox,
		Logger:        logger,
		CheckInterval: 30 * time.Second,
		BatchSize:     50,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (ns *NotificationScheduler) Start() {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	log := ns.Logger.WithField("module", "scheduler")
	if !ns.Enabled {
		log.Info("disabled, not starting")
		return
	}
	if ns.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ns.cancel = cancel
	ns.stop = make(chan struct{})
	ns.ticker = time.NewTicker(ns.CheckInterval)
	ns.wg.Add(1)

	go ns.run(ctx)

	log.WithField("interval", ns.CheckInterval.String()).Info("started")
}

// Stop stops the scheduler and waits for an in-flight flush to return.
func (ns *NotificationScheduler) Stop() {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.ticker == nil {
		return
	}
	ns.ticker.Stop()
	ns.cancel()
	close(ns.stop)
	ns.wg.Wait()
	ns.ticker = nil
	ns.Logger.WithField("module", "scheduler").Info("stopped")
}

func (ns *NotificationScheduler) run(ctx context.Context) {
	defer ns.wg.Done()

	// Run immediately on start
	ns.RunOnce(ctx)

	for {
		select {
		case <-ns.ticker.C:
			ns.RunOnce(ctx)
		case <-ns.stop:
			return
		}
	}
}

// RunOnce flushes one batch of due notifications.
func (ns *NotificationScheduler) RunOnce(ctx context.Context) (sent, failed int) {
	sent, failed, err := ns.Outbox.Flush(ctx, ns.BatchSize)
	if err != nil {
		config.LogError(ns.Logger, "scheduler", "RunOnce", map[string]int{"sent": sent, "failed": failed}, err)
		return sent, failed
	}
	if sent+failed > 0 {
		ns.Logger.WithFields(logrus.Fields{"module": "scheduler", "sent": sent, "failed": failed}).Info("outbox flushed")
	}
	return sent, failed
}
