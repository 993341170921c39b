// internal/worker/runner.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bartek5186/pricebridge/internal/queue"
)

// Runner uruchamia konsumenta kolejki w tle i przekazuje zlecenia do handlera.
type Runner struct {
	log      zerolog.Logger
	consumer queue.Consumer
	handler  queue.Handler

	// Dropped dostaje zlecenia, które zostały w kolejce po Stop.
	Dropped func(ctx context.Context, m queue.Message)

	mu      sync.Mutex // ochrona sekcji krytycznych
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup // śledzi goroutines
	jobs    uint64         // licznik przetworzonych zleceń
	failed  uint64
}

func New(log zerolog.Logger, consumer queue.Consumer, handler queue.Handler) *Runner {
	return &Runner{
		log:      log.With().Str("component", "worker").Logger(),
		consumer: consumer,
		handler:  handler,
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info().Msg("worker: start")
	go func() {
		defer r.wg.Done()
		err := r.consumer.Consume(ctx, r.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("consumer zakończony z błędem")
		}
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	return nil
}

// handle liczy zlecenia i łapie panic, żeby jedno złe zlecenie nie zabiło workera.
func (r *Runner) handle(ctx context.Context, m queue.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing batch %s: %v", m.BatchID, p)
		}
		r.mu.Lock()
		r.jobs++
		if err != nil {
			r.failed++
		}
		r.mu.Unlock()
	}()
	log := r.log.With().Str("batch_id", m.BatchID).Str("dataset", m.DatasetType).Logger()
	log.Info().Msg("job received")
	return r.handler(ctx, m)
}

func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()

	if d, ok := r.consumer.(queue.Drainer); ok {
		left := d.Drain()
		for _, m := range left {
			r.log.Warn().Str("batch_id", m.BatchID).Msg("job dropped on shutdown")
			if r.Dropped != nil {
				r.Dropped(context.Background(), m)
			}
		}
	}
	r.log.Info().Uint64("jobs", r.Jobs()).Msg("worker: stop")
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) Jobs() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs
}

func (r *Runner) Failed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
