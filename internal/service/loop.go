package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ticker runs fn every interval on its own goroutine until stopped. A call to
// kick runs fn early without waiting for the next tick.
type ticker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *zap.Logger

	kickChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func newTicker(name string, interval time.Duration, logger *zap.Logger, fn func(ctx context.Context)) *ticker {
	return &ticker{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		kickChan: make(chan struct{}, 1),
	}
}

func (t *ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})

	t.logger.Info("Starting loop", zap.String("loop", t.name), zap.Duration("interval", t.interval))

	t.wg.Add(1)
	go t.run(t.stopChan)
}

func (t *ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("Loop stopped", zap.String("loop", t.name))
}

func (t *ticker) kick() {
	select {
	case t.kickChan <- struct{}{}:
	default:
	}
}

func (t *ticker) run(stop chan struct{}) {
	defer t.wg.Done()

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	t.fn(ctx)
	for {
		select {
		case <-tick.C:
			t.fn(ctx)
		case <-t.kickChan:
			t.fn(ctx)
		case <-stop:
			return
		}
	}
}
