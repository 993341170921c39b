package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("job queue is full")

// InProc to kolejka w pamięci procesu: serve przyjmuje zlecenie, worker w tym
// samym procesie je wykonuje.
type InProc struct {
	ch  chan Message
	log zerolog.Logger
}

func NewInProc(capacity int, log zerolog.Logger) *InProc {
	if capacity <= 0 {
		capacity = 64
	}
	return &InProc{ch: make(chan Message, capacity), log: log.With().Str("component", "queue.inproc").Logger()}
}

func (q *InProc) Dispatch(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	select {
	case q.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *InProc) Consume(ctx context.Context, h Handler) error {
	for {
		// po anulowaniu nie bierzemy kolejnych zleceń, zostają dla Drain
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-q.ch:
			if err := h(ctx, m); err != nil {
				q.log.Error().Err(err).Str("batch_id", m.BatchID).Msg("job failed")
			}
		}
	}
}

func (q *InProc) Len() int { return len(q.ch) }

// Drain wyjmuje zlecenia, których nikt już nie odbierze (zatrzymany konsument).
func (q *InProc) Drain() []Message {
	var out []Message
	for {
		select {
		case m := <-q.ch:
			out = append(out, m)
		default:
			return out
		}
	}
}
