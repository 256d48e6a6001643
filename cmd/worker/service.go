package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

const dedupeTTL = 24 * time.Hour

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type scheduleRebaser interface {
	RebaseCourse(ctx context.Context, courseID coursekey.CourseKey) error
}

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type pinger interface {
	Ping(ctx context.Context) error
}

// inboundMessage is the envelope-independent view handlers operate on.
type inboundMessage struct {
	Data       []byte
	Attributes map[string]string
}

type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          pinger
	Redis       dedupeStore
	PubSub      pinger
	Courses     subscriber
	Enrollments subscriber
	Schedules   scheduleRebaser
}

// Service consumes the course and enrollment topics. Course lifecycle events
// trigger a schedule rebase so learner dates track the published run dates.
type Service struct {
	cfg         *config.Config
	logg        *logger.Logger
	db          pinger
	redis       dedupeStore
	pubsub      pinger
	courses     subscriber
	enrollments subscriber
	schedules   scheduleRebaser
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Courses == nil {
		return nil, errors.New("course subscription is required")
	}
	if params.Schedules == nil {
		return nil, errors.New("schedule service is required")
	}

	return &Service{
		cfg:         params.Config,
		logg:        params.Logger,
		db:          params.DB,
		redis:       params.Redis,
		pubsub:      params.PubSub,
		courses:     params.Courses,
		enrollments: params.Enrollments,
		schedules:   params.Schedules,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if p, ok := s.redis.(pinger); ok {
		if err := pingDependency(ctx, s.logg, "redis", p.Ping); err != nil {
			return err
		}
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.courses.Receive(ctx, s.ackWrap("course", s.handleCourseMessage))
	}()
	if s.enrollments != nil {
		go func() {
			errCh <- s.enrollments.Receive(ctx, s.ackWrap("enrollment", s.handleEnrollmentMessage))
		}()
	}

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "subscription receive stopped unexpectedly", err)
		}
		return err
	}
}

func (s *Service) ackWrap(stream string, handler func(context.Context, inboundMessage) error) func(context.Context, *gcppubsub.Message) {
	return func(ctx context.Context, msg *gcppubsub.Message) {
		inbound := inboundMessage{Data: msg.Data, Attributes: msg.Attributes}
		if err := handler(ctx, inbound); err != nil {
			logCtx := s.logg.WithField(ctx, "stream", stream)
			s.logg.Error(logCtx, "message handling failed", err)
			msg.Nack()
			return
		}
		msg.Ack()
	}
}

// seen marks an event id handled, reporting true when this delivery is a
// duplicate. A missing event id is treated as fresh.
func (s *Service) seen(ctx context.Context, stream, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	fresh, err := s.redis.SetNX(ctx, s.redis.IdempotencyKey(stream, eventID), 1, dedupeTTL)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// unmark releases an event id claimed by seen so the Nack'd redelivery is
// not mistaken for a duplicate.
func (s *Service) unmark(ctx context.Context, stream, eventID string) {
	if eventID == "" {
		return
	}
	if err := s.redis.Del(ctx, s.redis.IdempotencyKey(stream, eventID)); err != nil {
		s.logg.Error(ctx, "failed to release idempotency key", err)
	}
}

func (s *Service) handleCourseMessage(ctx context.Context, msg inboundMessage) error {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_type":   eventType,
		"aggregate_id": msg.Attributes["aggregate_id"],
	})

	eventID := msg.Attributes["event_id"]
	duplicate, err := s.seen(ctx, "course", eventID)
	if err != nil {
		return err
	}
	if duplicate {
		s.logg.Info(logCtx, "duplicate course event skipped")
		return nil
	}

	switch eventType {
	case enums.EventCourseRunCreated, enums.EventCourseRunRerun:
		courseID, err := coursekey.Parse(msg.Attributes["aggregate_id"])
		if err != nil {
			// Unparsable keys can never succeed on redelivery.
			s.logg.Error(logCtx, "course event carries invalid course key", err)
			return nil
		}
		if err := s.schedules.RebaseCourse(ctx, courseID); err != nil {
			s.unmark(ctx, "course", eventID)
			return err
		}
		s.logg.Info(logCtx, "schedules rebased for course event")
		return nil

	case enums.EventCourseRunDeleted:
		s.logg.Info(logCtx, "course run deleted")
		return nil

	default:
		s.logg.Info(logCtx, "course event ignored")
		return nil
	}
}

func (s *Service) handleEnrollmentMessage(ctx context.Context, msg inboundMessage) error {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_type":   eventType,
		"aggregate_id": msg.Attributes["aggregate_id"],
	})

	duplicate, err := s.seen(ctx, "enrollment", msg.Attributes["event_id"])
	if err != nil {
		return err
	}
	if duplicate {
		s.logg.Info(logCtx, "duplicate enrollment event skipped")
		return nil
	}

	s.logg.Info(logCtx, "enrollment event received")
	return nil
}
