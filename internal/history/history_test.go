package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestLog(t *testing.T) {
	t.Parallel()

	l := NewLog(Exchange{User: "q1", Bot: "a1"})
	l.Append("q2", "a2")
	l.Append("q3", "a3")

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	last := l.Last(2)
	if len(last) != 2 || last[0].User != "q2" || last[1].User != "q3" {
		t.Errorf("Last(2) = %+v", last)
	}
	if got := l.Last(10); len(got) != 3 {
		t.Errorf("Last(10) returned %d exchanges, want 3", len(got))
	}
	if got := l.Last(0); got != nil {
		t.Errorf("Last(0) = %+v, want nil", got)
	}
	if got := l.Since(3); got != nil {
		t.Errorf("Since(3) = %+v, want nil", got)
	}

	all := l.Exchanges()
	all[0].User = "mutated"
	if ex, _ := l.At(0); ex.User != "q1" {
		t.Error("Exchanges() must return a copy")
	}
	if _, ok := l.At(3); ok {
		t.Error("At(3) should be out of range")
	}
}

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendLoadDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-a", Exchange{"hello", "world"}, Exchange{"again", "sure"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "sess-b", Exchange{"other", "session"}); err != nil {
		t.Fatalf("append b: %v", err)
	}

	got, err := s.Load(ctx, "sess-a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].User != "hello" || got[1].Bot != "sure" {
		t.Fatalf("load = %+v", got)
	}

	if err := s.Delete(ctx, "sess-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.Load(ctx, "sess-a"); len(got) != 0 {
		t.Errorf("expected empty session after delete, got %d", len(got))
	}
	if got, _ := s.Load(ctx, "sess-b"); len(got) != 1 {
		t.Errorf("delete must not touch other sessions, got %d", len(got))
	}
}

func Test_Store_Feedback(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, liked := range []bool{true, true, false} {
		if err := s.RecordFeedback(ctx, Feedback{Session: "s", Index: 0, Liked: liked, Value: "v"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	up, down, err := s.FeedbackCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if up != 2 || down != 1 {
		t.Errorf("counts = %d up / %d down, want 2 / 1", up, down)
	}
}

func TestSessions_UpdatePersistsAndHydrates(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	first := NewSessions(store, nil)
	err := first.Update(ctx, "s1", func(l *Log) error {
		l.Append("what is RAG?", "retrieval-augmented generation")
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// A fresh registry (e.g. after restart) hydrates from the store.
	second := NewSessions(store, nil)
	got, err := second.Snapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(got) != 1 || got[0].User != "what is RAG?" {
		t.Fatalf("hydrated = %+v", got)
	}
}

func TestSessions_UpdateErrorStillPersistsAppended(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	r := NewSessions(store, nil)

	boom := errors.New("boom")
	err := r.Update(ctx, "s", func(l *Log) error {
		l.Append("q", "a")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if got, _ := store.Load(ctx, "s"); len(got) != 1 {
		t.Errorf("expected appended exchange persisted, got %d", len(got))
	}
}

func TestSessions_InMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewSessions(nil, nil)

	_ = r.Update(ctx, "s", func(l *Log) error { l.Append("q", "a"); return nil })
	got, err := r.Snapshot(ctx, "s")
	if err != nil || len(got) != 1 {
		t.Fatalf("snapshot = %+v, %v", got, err)
	}
	if err := r.Reset(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Snapshot(ctx, "s"); len(got) != 0 {
		t.Errorf("expected empty log after reset, got %d", len(got))
	}
}

func TestSessions_ResetDeletesFromStore(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	r := NewSessions(store, nil)

	_ = r.Update(ctx, "s", func(l *Log) error { l.Append("q", "a"); return nil })
	if err := r.Reset(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	if got, _ := NewSessions(store, nil).Snapshot(ctx, "s"); len(got) != 0 {
		t.Errorf("expected store cleared, got %d", len(got))
	}
}

func TestSessions_Feedback(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	r := NewSessions(store, nil)

	if _, err := r.Feedback(ctx, "nobody", 0, true); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}

	_ = r.Update(ctx, "s", func(l *Log) error { l.Append("q", "the answer"); return nil })
	if _, err := r.Feedback(ctx, "s", 5, true); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}

	fb, err := r.Feedback(ctx, "s", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if fb.Value != "the answer" || fb.Liked {
		t.Errorf("feedback = %+v", fb)
	}
	if _, down, _ := store.FeedbackCounts(ctx); down != 1 {
		t.Errorf("expected one persisted downvote, got %d", down)
	}
}

func TestSessions_ConcurrentUpdatesSerialised(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewSessions(nil, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Update(ctx, "shared", func(l *Log) error {
				l.Append("q", "a")
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := r.Snapshot(ctx, "shared")
	if len(got) != 50 {
		t.Errorf("expected 50 exchanges, got %d", len(got))
	}
}

func TestSessions_EmptyEntriesNotRetained(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewSessions(openTestStore(t), nil)

	for i := range 20 {
		id := fmt.Sprintf("visitor-%d", i)
		if _, err := r.Snapshot(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := r.Reset(ctx, id); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Feedback(ctx, id, 0, true); !errors.Is(err, ErrUnknownSession) {
			t.Fatalf("expected ErrUnknownSession, got %v", err)
		}
	}
	if n := r.size(); n != 0 {
		t.Fatalf("expected no retained sessions, got %d", n)
	}

	_ = r.Update(ctx, "active", func(l *Log) error { l.Append("q", "a"); return nil })
	if n := r.size(); n != 1 {
		t.Fatalf("expected the active session retained, got %d", n)
	}
	if err := r.Reset(ctx, "active"); err != nil {
		t.Fatal(err)
	}
	if n := r.size(); n != 0 {
		t.Errorf("expected reset session dropped, got %d", n)
	}
}

func TestNewSessionID(t *testing.T) {
	t.Parallel()
	a, b := NewSessionID(), NewSessionID()
	if a == b || len(a) != 36 {
		t.Errorf("NewSessionID() = %q, %q", a, b)
	}
}
