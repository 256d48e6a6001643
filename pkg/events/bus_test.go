package events

import (
	"context"
	"errors"
	"testing"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
)

func TestBus_DispatchOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	bus.Subscribe(NameCoursePublished, func(ctx context.Context, evt Event) error {
		got = append(got, "first")
		return nil
	})
	bus.Subscribe(NameCoursePublished, func(ctx context.Context, evt Event) error {
		got = append(got, "second")
		return nil
	})

	bus.Publish(context.Background(), CoursePublished{CourseID: coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")})

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("handlers ran out of order: %v", got)
	}
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(nil)
	ran := false
	bus.Subscribe(NameCourseDeleted, func(ctx context.Context, evt Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(NameCourseDeleted, func(ctx context.Context, evt Event) error {
		ran = true
		return nil
	})

	bus.Publish(context.Background(), CourseDeleted{CourseID: coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")})

	if !ran {
		t.Fatalf("second handler did not run after first failed")
	}
}

func TestBus_BufferCoalescesByKey(t *testing.T) {
	bus := NewBus(nil)
	count := 0
	bus.Subscribe(NameCoursePublished, func(ctx context.Context, evt Event) error {
		count++
		return nil
	})

	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	other := coursekey.MustNew("OpenLearnX", "CS102", "2026_T1")

	ctx, buf := WithBuffer(context.Background())
	bus.Publish(ctx, CoursePublished{CourseID: key})
	bus.Publish(ctx, CoursePublished{CourseID: key})
	bus.Publish(ctx, CoursePublished{CourseID: other})

	if count != 0 {
		t.Fatalf("buffered events dispatched early: %d", count)
	}

	bus.Flush(context.Background(), buf)
	if count != 2 {
		t.Fatalf("expected 2 coalesced dispatches, got %d", count)
	}
}

func TestBus_FlushPreservesFirstPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	bus.Subscribe(NameCoursePublished, func(ctx context.Context, evt Event) error {
		got = append(got, evt.DedupeKey())
		return nil
	})

	a := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	b := coursekey.MustNew("OpenLearnX", "CS102", "2026_T1")

	ctx, buf := WithBuffer(context.Background())
	bus.Publish(ctx, CoursePublished{CourseID: a})
	bus.Publish(ctx, CoursePublished{CourseID: b})
	bus.Publish(ctx, CoursePublished{CourseID: a})
	bus.Flush(context.Background(), buf)

	if len(got) != 2 || got[0] != a.String() || got[1] != b.String() {
		t.Fatalf("unexpected flush order: %v", got)
	}
}
