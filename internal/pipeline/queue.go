// Package pipeline wires the Registry Store, Vector Index, registry client,
// PDF processor, and LLM/embedding clients into the four-stage ingestion
// pipeline, generalizing the teacher's single-stage NATS consumer
// (engine/ingest.StartConsumer) to fetch -> pdf-process -> llm-extract ->
// embed, plus the synchronous hybrid search path (grounded on engine/rag).
package pipeline

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/pkg/natsutil"
)

// WakeUp is published to a stage's subject to prompt a worker to poll the
// store for newly-pending work; the message body only carries the staging
// item id as a hint, since Postgres remains the source of truth for
// ownership (workers re-claim via PGStore.ClaimByID/ClaimNext either way).
type WakeUp struct {
	StagingItemID string `json:"staging_item_id"`
	// Force overrides the llm stage's dedup-by-extraction_model skip rule
	// (§4.5), reprocessing even if the target model tag already matches.
	Force bool `json:"force,omitempty"`
}

// subjectFor maps a pipeline stage to its NATS subject and DLQ subject.
func subjectFor(stage domain.Stage) (subject, dlq string) {
	base := "pipeline." + string(stage)
	return base, base + ".dlq"
}

// Queue is the transport abstraction a stage worker depends on: publish a
// wake-up for a stage, and subscribe to be woken for a stage. Tests can
// substitute an in-process implementation instead of a real NATS server.
type Queue interface {
	Publish(ctx context.Context, stage domain.Stage, msg WakeUp) error
	PublishDLQ(ctx context.Context, stage domain.Stage, msg DLQMessage) error
	Subscribe(stage domain.Stage, handler func(context.Context, WakeUp)) (Subscription, error)
}

// Subscription allows the caller to stop receiving wake-ups for a stage.
type Subscription interface {
	Unsubscribe() error
}

// DLQMessage is published to a stage's dead-letter subject once a staging
// item has exhausted its retry budget, mirroring engine/ingest's dlqMessage.
type DLQMessage struct {
	StagingItemID string `json:"staging_item_id"`
	Stage         string `json:"stage"`
	Error         string `json:"error"`
	Retries       int    `json:"retries"`
}

// NATSQueue implements Queue over a real NATS connection using the
// generic pub/sub helpers from pkg/natsutil.
type NATSQueue struct {
	nc *nats.Conn
}

func NewNATSQueue(nc *nats.Conn) *NATSQueue { return &NATSQueue{nc: nc} }

func (q *NATSQueue) Publish(ctx context.Context, stage domain.Stage, msg WakeUp) error {
	subject, _ := subjectFor(stage)
	return natsutil.Publish(ctx, q.nc, subject, msg)
}

func (q *NATSQueue) PublishDLQ(ctx context.Context, stage domain.Stage, msg DLQMessage) error {
	_, dlq := subjectFor(stage)
	return natsutil.Publish(ctx, q.nc, dlq, msg)
}

type natsSubscription struct{ sub *nats.Subscription }

func (s *natsSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }

func (q *NATSQueue) Subscribe(stage domain.Stage, handler func(context.Context, WakeUp)) (Subscription, error) {
	subject, _ := subjectFor(stage)
	sub, err := natsutil.Subscribe(q.nc, subject, handler)
	if err != nil {
		return nil, fmt.Errorf("pipeline: subscribe %s: %w", subject, err)
	}
	return &natsSubscription{sub: sub}, nil
}

// InProcessQueue implements Queue with buffered Go channels, one per stage,
// for unit tests (the binaries use NATSQueue). Subscribe spawns
// a goroutine that drains the channel until Unsubscribe is called.
type InProcessQueue struct {
	chans map[domain.Stage]chan WakeUp
	dlqs  map[domain.Stage]chan DLQMessage
}

func NewInProcessQueue() *InProcessQueue {
	q := &InProcessQueue{
		chans: make(map[domain.Stage]chan WakeUp),
		dlqs:  make(map[domain.Stage]chan DLQMessage),
	}
	for _, stage := range domain.StageOrder {
		q.chans[stage] = make(chan WakeUp, 256)
		q.dlqs[stage] = make(chan DLQMessage, 256)
	}
	return q
}

func (q *InProcessQueue) Publish(ctx context.Context, stage domain.Stage, msg WakeUp) error {
	ch, ok := q.chans[stage]
	if !ok {
		return fmt.Errorf("pipeline: unknown stage %s", stage)
	}
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil // queue full: a poll-driven worker will pick it up regardless
	}
}

func (q *InProcessQueue) PublishDLQ(_ context.Context, stage domain.Stage, msg DLQMessage) error {
	ch, ok := q.dlqs[stage]
	if !ok {
		return fmt.Errorf("pipeline: unknown stage %s", stage)
	}
	select {
	case ch <- msg:
	default:
	}
	return nil
}

type chanSubscription struct{ stop chan struct{} }

func (s *chanSubscription) Unsubscribe() error {
	close(s.stop)
	return nil
}

func (q *InProcessQueue) Subscribe(stage domain.Stage, handler func(context.Context, WakeUp)) (Subscription, error) {
	ch, ok := q.chans[stage]
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown stage %s", stage)
	}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case msg := <-ch:
				handler(context.Background(), msg)
			case <-stop:
				return
			}
		}
	}()
	return &chanSubscription{stop: stop}, nil
}
