package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wessley-grants/ingestor/internal/domain"
)

func TestSubjectFor(t *testing.T) {
	subject, dlq := subjectFor(domain.StageLLM)
	if subject != "pipeline.llm" {
		t.Errorf("expected subject pipeline.llm, got %s", subject)
	}
	if dlq != "pipeline.llm.dlq" {
		t.Errorf("expected dlq pipeline.llm.dlq, got %s", dlq)
	}
}

func TestInProcessQueue_PublishAndSubscribe(t *testing.T) {
	q := NewInProcessQueue()

	var mu sync.Mutex
	var received []WakeUp
	sub, err := q.Subscribe(domain.StageFetch, func(_ context.Context, msg WakeUp) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := q.Publish(context.Background(), domain.StageFetch, WakeUp{StagingItemID: "abc"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for wake-up to be delivered")
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if received[0].StagingItemID != "abc" {
		t.Errorf("expected staging_item_id=abc, got %s", received[0].StagingItemID)
	}
}

func TestInProcessQueue_UnknownStage(t *testing.T) {
	q := NewInProcessQueue()
	if err := q.Publish(context.Background(), domain.Stage("bogus"), WakeUp{}); err == nil {
		t.Error("expected an error publishing to an unknown stage")
	}
	if _, err := q.Subscribe(domain.Stage("bogus"), func(context.Context, WakeUp) {}); err == nil {
		t.Error("expected an error subscribing to an unknown stage")
	}
}

func TestInProcessQueue_PublishDLQ(t *testing.T) {
	q := NewInProcessQueue()
	if err := q.PublishDLQ(context.Background(), domain.StagePDF, DLQMessage{StagingItemID: "x"}); err != nil {
		t.Fatalf("publish dlq: %v", err)
	}
	select {
	case msg := <-q.dlqs[domain.StagePDF]:
		if msg.StagingItemID != "x" {
			t.Errorf("expected staging_item_id=x, got %s", msg.StagingItemID)
		}
	default:
		t.Error("expected a message on the pdf dlq channel")
	}
}
