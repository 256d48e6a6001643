package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type stubRebaser struct {
	rebased  []coursekey.CourseKey
	failures int
}

func (s *stubRebaser) RebaseCourse(_ context.Context, courseID coursekey.CourseKey) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("schedule store unavailable")
	}
	s.rebased = append(s.rebased, courseID)
	return nil
}

type memDedupe struct {
	keys map[string]bool
}

func (m *memDedupe) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memDedupe) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memDedupe) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func newWorker(t *testing.T, rebaser *stubRebaser, dedupe *memDedupe) *Service {
	t.Helper()
	return &Service{
		cfg:       &config.Config{},
		logg:      logger.New(logger.Options{ServiceName: "test"}),
		redis:     dedupe,
		schedules: rebaser,
	}
}

func TestCourseCreatedEventRebasesSchedules(t *testing.T) {
	rebaser := &stubRebaser{}
	svc := newWorker(t, rebaser, &memDedupe{})

	msg := inboundMessage{Attributes: map[string]string{
		"event_type":   "course_run_created",
		"aggregate_id": "course-v1:edX+DemoX+2026",
		"event_id":     "evt-1",
	}}
	if err := svc.handleCourseMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleCourseMessage: %v", err)
	}
	if len(rebaser.rebased) != 1 || rebaser.rebased[0].String() != "course-v1:edX+DemoX+2026" {
		t.Fatalf("expected rebase for course, got %v", rebaser.rebased)
	}
}

func TestDuplicateCourseEventSkipsRebase(t *testing.T) {
	rebaser := &stubRebaser{}
	svc := newWorker(t, rebaser, &memDedupe{})

	msg := inboundMessage{Attributes: map[string]string{
		"event_type":   "course_run_rerun",
		"aggregate_id": "course-v1:edX+DemoX+2026",
		"event_id":     "evt-2",
	}}
	if err := svc.handleCourseMessage(context.Background(), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.handleCourseMessage(context.Background(), msg); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(rebaser.rebased) != 1 {
		t.Fatalf("expected exactly one rebase, got %d", len(rebaser.rebased))
	}
}

func TestFailedRebaseRetriesOnRedelivery(t *testing.T) {
	rebaser := &stubRebaser{failures: 1}
	svc := newWorker(t, rebaser, &memDedupe{})

	msg := inboundMessage{Attributes: map[string]string{
		"event_type":   "course_run_created",
		"aggregate_id": "course-v1:edX+DemoX+2026",
		"event_id":     "evt-5",
	}}
	if err := svc.handleCourseMessage(context.Background(), msg); err == nil {
		t.Fatal("first delivery should surface the rebase failure")
	}
	if len(rebaser.rebased) != 0 {
		t.Fatalf("failed attempt must not record a rebase, got %v", rebaser.rebased)
	}

	if err := svc.handleCourseMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(rebaser.rebased) != 1 {
		t.Fatalf("redelivery after a failure should rebase, got %d", len(rebaser.rebased))
	}
}

func TestInvalidCourseKeyIsNotRetried(t *testing.T) {
	rebaser := &stubRebaser{}
	svc := newWorker(t, rebaser, &memDedupe{})

	msg := inboundMessage{Attributes: map[string]string{
		"event_type":   "course_run_created",
		"aggregate_id": "not-a-course-key",
		"event_id":     "evt-3",
	}}
	if err := svc.handleCourseMessage(context.Background(), msg); err != nil {
		t.Fatalf("invalid key must ack, got error: %v", err)
	}
	if len(rebaser.rebased) != 0 {
		t.Fatal("invalid key must not rebase")
	}
}

func TestUnrelatedCourseEventIsAcked(t *testing.T) {
	rebaser := &stubRebaser{}
	svc := newWorker(t, rebaser, &memDedupe{})

	msg := inboundMessage{Attributes: map[string]string{
		"event_type":   "course_run_deleted",
		"aggregate_id": "course-v1:edX+DemoX+2026",
	}}
	if err := svc.handleCourseMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleCourseMessage: %v", err)
	}
	if len(rebaser.rebased) != 0 {
		t.Fatal("deleted runs must not rebase")
	}
}
