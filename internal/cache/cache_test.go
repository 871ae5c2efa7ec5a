package cache

import (
	"path/filepath"
	"testing"

	"github.com/mailsift/mailsift/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetMiss(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.Get("nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("Get reported a hit on an empty cache")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	want := protocol.Verdict{
		BriefAnalysis: "credential phishing imitating a bank",
		Category:      protocol.CategoryPhishing,
		Confidence:    0.92,
	}
	if err := store.Put("fp1", want, "qwen3-1.7b-instruct"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := store.Get("fp1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Get missed after Put")
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestPutIdempotent(t *testing.T) {
	store := openTestStore(t)
	first := protocol.Verdict{BriefAnalysis: "first", Category: protocol.CategorySafe, Confidence: 0.5}
	second := protocol.Verdict{BriefAnalysis: "second", Category: protocol.CategorySpam, Confidence: 0.9}

	if err := store.Put("fp", first, "m"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put("fp", second, "m"); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, _, err := store.Get("fp")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != first {
		t.Errorf("second Put overwrote first verdict: got %+v", got)
	}
}

func TestClearAndCount(t *testing.T) {
	store := openTestStore(t)
	for _, fp := range []string{"a", "b", "c"} {
		if err := store.Put(fp, protocol.Verdict{Category: protocol.CategorySafe}, "m"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	n, err = store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}

func TestStatsPerModel(t *testing.T) {
	store := openTestStore(t)
	store.Put("a", protocol.Verdict{Category: protocol.CategorySafe}, "big")
	store.Put("b", protocol.Verdict{Category: protocol.CategorySafe}, "big")
	store.Put("c", protocol.Verdict{Category: protocol.CategorySpam}, "small")

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["big"] != 2 || stats["small"] != 1 {
		t.Errorf("Stats = %v", stats)
	}
}
