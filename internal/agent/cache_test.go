package agent

import (
	"testing"
	"time"
)

func TestLRUStoreRoundTrip(t *testing.T) {
	store := NewLRUStore(4, time.Minute)

	if _, ok := store.Get("cfg-1"); ok {
		t.Fatal("empty store returned a hit")
	}

	store.Set("cfg-1", CachedData{Label: "Sprint 14", Issues: sampleIssues()})
	got, ok := store.Get("cfg-1")
	if !ok || got.Label != "Sprint 14" || len(got.Issues) != 3 {
		t.Fatalf("get = %+v ok=%v", got, ok)
	}
	if got.FetchedAt.IsZero() {
		t.Fatal("FetchedAt not stamped on Set")
	}

	if _, ok := store.Get("cfg-2"); ok {
		t.Fatal("config ids are not isolated")
	}

	store.Delete("cfg-1")
	if _, ok := store.Get("cfg-1"); ok {
		t.Fatal("entry survived Delete")
	}
}

func TestLRUStoreOverwrite(t *testing.T) {
	store := NewLRUStore(4, time.Minute)
	store.Set("cfg", CachedData{Label: "old"})
	store.Set("cfg", CachedData{Label: "new"})
	got, ok := store.Get("cfg")
	if !ok || got.Label != "new" {
		t.Fatalf("get = %+v ok=%v", got, ok)
	}
}

func TestLRUStoreEvictsBeyondCapacity(t *testing.T) {
	store := NewLRUStore(2, time.Minute)
	store.Set("a", CachedData{Label: "a"})
	store.Set("b", CachedData{Label: "b"})
	store.Set("c", CachedData{Label: "c"})

	hits := 0
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := store.Get(id); ok {
			hits++
		}
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2 after eviction", hits)
	}
}

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("session", "cfg-1")
	b := Fingerprint("session", "cfg-1")
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if a == Fingerprint("session", "cfg-2") {
		t.Fatal("distinct inputs collided")
	}
	// Separator matters: ("ab","c") must differ from ("a","bc").
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Fatal("part boundaries not separated")
	}
	if len(a) != 32 {
		t.Fatalf("fingerprint length = %d", len(a))
	}
}
