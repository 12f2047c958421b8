package memcache

import (
	"fmt"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	s := New(10)
	s.Set("a", map[string]any{"n": 1.0}, time.Minute)

	v, ok := s.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(map[string]any)["n"] != 1.0 {
		t.Errorf("value = %v", v)
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("expected miss for missing key")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := New(10)
	s.Set("k", "v", 1*time.Second)

	time.Sleep(1100 * time.Millisecond)

	if v, ok := s.Get("k"); ok || v != nil {
		t.Errorf("Get() = %v, %v after TTL, want nil, false", v, ok)
	}
	if s.Has("k") {
		t.Error("Has() = true after TTL")
	}
	if st := s.Stats(); st.Size != 0 {
		t.Errorf("Size = %d, want 0 after lazy eviction", st.Size)
	}
}

func TestNoExpiry(t *testing.T) {
	s := New(10)
	s.Set("forever", 1, 0)
	s.Set("also-forever", 2, -time.Second)

	if !s.Has("forever") || !s.Has("also-forever") {
		t.Error("entries without TTL should be present")
	}
	if s.Sweep() != 0 {
		t.Error("Sweep() removed entries without TTL")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := New(10)
	s.Set("short", 1, 20*time.Millisecond)
	s.Set("long", 2, time.Hour)

	time.Sleep(40 * time.Millisecond)

	st := s.Stats()
	if st.ExpiredCount != 1 || st.ValidCount != 1 {
		t.Errorf("before sweep: valid=%d expired=%d, want 1/1", st.ValidCount, st.ExpiredCount)
	}

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if st := s.Stats(); st.Size != 1 || st.ExpiredCount != 0 {
		t.Errorf("after sweep: %+v", st)
	}
}

func TestEvictsOldestTenthOverCapacity(t *testing.T) {
	s := New(20)
	for i := range 20 {
		s.Set(fmt.Sprintf("k%02d", i), i, time.Hour)
		time.Sleep(time.Millisecond)
	}
	s.Set("k20", 20, time.Hour)

	// 21 entries > 20: evict max(1, 21/10) = 2 oldest.
	if s.Has("k00") || s.Has("k01") {
		t.Error("oldest entries should have been evicted")
	}
	if !s.Has("k02") || !s.Has("k20") {
		t.Error("newer entries should survive")
	}
	if st := s.Stats(); st.Size != 19 {
		t.Errorf("Size = %d, want 19", st.Size)
	}
}

func TestHitRatioAndClear(t *testing.T) {
	s := New(10)
	s.Set("a", 1, time.Minute)

	s.Get("a")
	s.Get("a")
	s.Get("a")
	s.Get("b")

	st := s.Stats()
	if st.Hits != 3 || st.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 3/1", st.Hits, st.Misses)
	}
	if st.HitRatio != 0.75 {
		t.Errorf("HitRatio = %v, want 0.75", st.HitRatio)
	}

	// Has does not count.
	s.Has("a")
	s.Has("zzz")
	if got := s.Stats(); got.Hits != 3 || got.Misses != 1 {
		t.Errorf("Has() changed stats: %+v", got)
	}

	s.Clear()
	st = s.Stats()
	if st.Size != 0 || st.Hits != 0 || st.Misses != 0 || st.HitRatio != 0 {
		t.Errorf("after Clear: %+v", st)
	}
}

func TestDelete(t *testing.T) {
	s := New(10)
	s.Set("a", 1, time.Minute)
	s.Delete("a")
	if s.Has("a") {
		t.Error("Has() = true after Delete")
	}
}
