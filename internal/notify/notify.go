// Package notify delivers decision-cycle outcomes to downstream consumers.
// Every cycle produces exactly one outcome record, including cycles that
// decided to do nothing.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
	"github.com/absfi/vaultd/internal/events"
)

// Sink receives outcome records. Implementations must not block for long;
// the queue worker delivers to all sinks sequentially.
type Sink interface {
	Notify(outcome domain.Outcome)
}

// Queue decouples the decision pipeline from its consumers with a buffered
// channel and one worker goroutine. When the buffer fills, the oldest
// behavior is to drop and count rather than stall the pipeline.
type Queue struct {
	sinks   []Sink
	ch      chan domain.Outcome
	log     zerolog.Logger
	dropped int64

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewQueue creates a new notification queue with the given buffer size.
func NewQueue(size int, log zerolog.Logger, sinks ...Sink) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		sinks: sinks,
		ch:    make(chan domain.Outcome, size),
		log:   log.With().Str("component", "notify").Logger(),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Safe to call once.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	go func() {
		defer close(q.done)
		for outcome := range q.ch {
			for _, sink := range q.sinks {
				sink.Notify(outcome)
			}
		}
	}()
}

// Stop drains the queue and waits for the worker to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	close(q.ch)
	<-q.done
}

// Publish enqueues an outcome. A full buffer drops the outcome; the pipeline
// must never block on a slow consumer.
func (q *Queue) Publish(outcome domain.Outcome) {
	select {
	case q.ch <- outcome:
	default:
		q.mu.Lock()
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		q.log.Warn().
			Int64("vault_id", int64(outcome.VaultID)).
			Str("class", string(outcome.Class)).
			Int64("total_dropped", dropped).
			Msg("Notification queue full, outcome dropped")
	}
}

// LogSink writes outcomes to the structured log.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink that logs every outcome.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("sink", "log").Logger()}
}

// Notify implements Sink.
func (s *LogSink) Notify(outcome domain.Outcome) {
	event := s.log.Info()
	if outcome.Class == domain.OutcomeError {
		event = s.log.Error()
	}

	event = event.
		Int64("vault_id", int64(outcome.VaultID)).
		Str("class", string(outcome.Class))
	if outcome.Summary != nil {
		event = event.
			Str("reallocation_id", outcome.Summary.ID).
			Str("status", string(outcome.Summary.Status)).
			Float64("total", outcome.Summary.TotalReallocation)
	}
	event.Msg(outcome.Message)
}

// BusSink republishes outcomes on the event bus so the SSE stream and any
// other subscriber see them.
type BusSink struct {
	manager *events.Manager
}

// NewBusSink creates a sink that emits ReallocationOutcome events.
func NewBusSink(manager *events.Manager) *BusSink {
	return &BusSink{manager: manager}
}

// Notify implements Sink.
func (s *BusSink) Notify(outcome domain.Outcome) {
	s.manager.Emit("notify", &events.OutcomeData{Outcome: outcome})
}
