package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type stubRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (s *stubRepo) FetchUnpublished(limit int) ([]models.OutboxEvent, error) {
	if len(s.events) > limit {
		return s.events[:limit], nil
	}
	return s.events, nil
}

func (s *stubRepo) MarkPublished(id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubRepo) MarkFailed(id uuid.UUID, _ error) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *stubRepo) MarkTerminal(id uuid.UUID, _ error) error {
	s.terminal = append(s.terminal, id)
	return nil
}

type stubDLQ struct {
	entries []models.OutboxDLQ
}

func (s *stubDLQ) Insert(_ context.Context, entry models.OutboxDLQ) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubPubSub struct{ stubPinger }

func (stubPubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "msg-1", r.err }

type fakePublisher struct {
	topics   []string
	messages []*gcppubsub.Message
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{err: p.err}
}

func testConfig() *config.Config {
	return &config.Config{
		PubSub: config.PubSubConfig{
			EnrollmentTopic: "enrollment-events",
			CourseTopic:     "course-events",
		},
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
	}
}

func newTestService(t *testing.T, repo *stubRepo, dlq *stubDLQ, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:        testConfig(),
		Logger:        logger.New(logger.Options{ServiceName: "test"}),
		DB:            stubPinger{},
		PubSub:        stubPubSub{},
		Repository:    repo,
		DLQRepository: dlq,
		PublisherFactory: func(topic string) publisher {
			pub.topics = append(pub.topics, topic)
			return pub
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func enrollmentEvent() models.OutboxEvent {
	payload, _ := json.Marshal(map[string]any{"event_id": uuid.NewString(), "version": 1})
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEnrollmentCreated,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   uuid.NewString(),
		Payload:       payload,
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	event := enrollmentEvent()
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	pub := &fakePublisher{}

	svc := newTestService(t, repo, dlq, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "enrollment-events" {
		t.Fatalf("expected enrollment topic, got %v", pub.topics)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.messages))
	}
	if got := pub.messages[0].Attributes["aggregate_type"]; got != "enrollment" {
		t.Fatalf("unexpected aggregate_type attribute %q", got)
	}
}

func TestProcessBatchRoutesCourseEvents(t *testing.T) {
	event := enrollmentEvent()
	event.EventType = enums.EventCourseRunCreated
	event.AggregateType = enums.AggregateCourseRun
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}

	svc := newTestService(t, repo, &stubDLQ{}, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "course-events" {
		t.Fatalf("expected course topic, got %v", pub.topics)
	}
}

func TestProcessBatchRetriesTransientFailure(t *testing.T) {
	event := enrollmentEvent()
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}

	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected one failure mark, got %d", len(repo.failed))
	}
	if len(repo.terminal) != 0 || len(dlq.entries) != 0 {
		t.Fatal("transient failure must not dead-letter")
	}
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := enrollmentEvent()
	event.AttemptCount = 2
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}

	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected terminal mark, got %v", repo.terminal)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq reason %q", dlq.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatal("terminal event must not also be marked failed")
	}
}

func TestProcessBatchDeadLettersUnknownAggregate(t *testing.T) {
	event := enrollmentEvent()
	event.AggregateType = enums.OutboxAggregateType("invoice")
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	pub := &fakePublisher{}

	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatal("unroutable event must not publish")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
}
