package server

import (
	"errors"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/review-insights/insights"
	"github.com/theimaginaryfoundation/review-insights/insights/provider"
)

func newTestRegistry(ttl time.Duration) (*Registry, *time.Time) {
	mock := provider.NewMock()
	r := NewRegistry(func(id string) *insights.Session {
		return insights.NewSession(id, insights.NewAnalyzer(mock, 0), insights.NewChatEngine(mock, 0))
	}, ttl)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRegistry_CreateAndGet(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(time.Hour)
	var counts []int
	r.OnChange(func(n int) { counts = append(counts, n) })

	a := r.Create()
	b := r.Create()
	if a.ID == b.ID {
		t.Fatalf("duplicate id %q", a.ID)
	}
	got, err := r.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("Get: %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, insights.ErrSessionNotFound) {
		t.Fatalf("err=%v", err)
	}
	if r.Len() != 2 || len(counts) != 2 || counts[1] != 2 {
		t.Fatalf("Len=%d counts=%v", r.Len(), counts)
	}
}

func TestRegistry_SweepDropsIdleSessions(t *testing.T) {
	t.Parallel()

	r, now := newTestRegistry(time.Hour)
	idle := r.Create()
	active := r.Create()

	*now = now.Add(50 * time.Minute)
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	*now = now.Add(20 * time.Minute)

	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d", n)
	}
	if _, err := r.Get(idle.ID); !errors.Is(err, insights.ErrSessionNotFound) {
		t.Fatalf("idle session survived: %v", err)
	}
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("active session dropped: %v", err)
	}
}

func TestRegistry_ZeroTTLKeepsSessions(t *testing.T) {
	t.Parallel()

	r, now := newTestRegistry(0)
	r.Create()
	*now = now.Add(100 * time.Hour)
	if n := r.Sweep(); n != 0 || r.Len() != 1 {
		t.Fatalf("removed=%d len=%d", n, r.Len())
	}
}
