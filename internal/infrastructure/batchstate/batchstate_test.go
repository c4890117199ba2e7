package batchstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPendingStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewPendingStore(dir, "8888000123")

	done, err := store.Done("2026-08-30", 2)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("fresh store should report not done")
	}

	if err := store.MarkDone("2026-08-30", 2); err != nil {
		t.Fatal(err)
	}
	done, err = store.Done("2026-08-30", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("batch 2 should be done")
	}

	// 其他批次与其他日期不受影响
	if done, _ := store.Done("2026-08-30", 1); done {
		t.Error("batch 1 should not be done")
	}
	if done, _ := store.Done("2026-08-31", 2); done {
		t.Error("next day should not be done")
	}
}

func TestPendingStoreMonotonic(t *testing.T) {
	dir := t.TempDir()
	store := NewPendingStore(dir, "a")
	if err := store.MarkDone("2026-08-30", 1); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkDone("2026-08-30", 1); err != nil {
		t.Fatal(err)
	}
	done, err := store.Done("2026-08-30", 1)
	if err != nil || !done {
		t.Fatalf("flag lost after repeat mark: done=%v err=%v", done, err)
	}
}

func TestPendingStoreFileShape(t *testing.T) {
	dir := t.TempDir()
	store := NewPendingStore(dir, "acct9")
	if err := store.MarkDone("2026-08-30", 3); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "yunfei_ball", "pending_batches_by_account", "pending_batches_acct9.json")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]map[string]bool
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if !m["2026-08-30"]["3"] {
		t.Errorf("unexpected file content: %v", m)
	}
}

func TestReorderStoreAtMostOnce(t *testing.T) {
	dir := t.TempDir()
	store := NewReorderStore(dir)
	day := time.Date(2026, 8, 30, 10, 0, 0, 0, time.Local)

	if got, _ := store.Contains(day, 1001); got {
		t.Error("fresh store should not contain order")
	}
	if err := store.Add(day, 1001); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(day, 1001); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Contains(day, 1001); !got {
		t.Error("order should be recorded")
	}

	b, err := os.ReadFile(filepath.Join(dir, "runtime", "reorder_records", "reorder_record_20260830.json"))
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("order id recorded %d times, want 1", len(ids))
	}

	// 跨日独立
	next := day.AddDate(0, 0, 1)
	if got, _ := store.Contains(next, 1001); got {
		t.Error("next day should start clean")
	}
}
