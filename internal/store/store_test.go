package store_test

import (
	"path/filepath"
	"testing"

	"github.com/rajeshgoli/engram/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engram.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAllocatorNextIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	a := store.NewAllocator(s)

	first, err := a.Next("C")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first != "C001" {
		t.Errorf("first = %q, want C001", first)
	}
	second, err := a.Next("C")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if second != "C002" {
		t.Errorf("second = %q, want C002", second)
	}
}

func TestAllocatorPreAssignNeverMovesBackward(t *testing.T) {
	s := openTestStore(t)
	a := store.NewAllocator(s)

	if _, err := a.Next("E"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := a.PreAssign(map[string]int{"E": 1}); err != nil {
		t.Fatalf("pre-assign: %v", err)
	}
	n, err := a.Peek("E")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if n != 2 {
		t.Errorf("peek after no-op pre-assign = %d, want 2", n)
	}

	if err := a.PreAssign(map[string]int{"E": 50}); err != nil {
		t.Fatalf("pre-assign: %v", err)
	}
	n, err = a.Peek("E")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if n != 50 {
		t.Errorf("peek after forward pre-assign = %d, want 50", n)
	}
}

func TestAllocatorReserve(t *testing.T) {
	s := openTestStore(t)
	a := store.NewAllocator(s)

	ids, err := a.Reserve("C", 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	want := []string{"C001", "C002", "C003"}
	if len(ids) != len(want) {
		t.Fatalf("len(ids) = %d, want %d", len(ids), len(want))
	}
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, id, want[i])
		}
	}

	next, err := a.Next("C")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != "C004" {
		t.Errorf("next after reserve = %q, want C004", next)
	}
}

func TestAllocatorReserveRejectsNonPositiveCount(t *testing.T) {
	s := openTestStore(t)
	a := store.NewAllocator(s)

	if _, err := a.Reserve("C", 0); err == nil {
		t.Error("Reserve(_, 0) = nil error, want error")
	}
	if _, err := a.Reserve("C", -1); err == nil {
		t.Error("Reserve(_, -1) = nil error, want error")
	}
}

func TestAllocatorPreAssignForChunkCombinesMinNextJumpAndReservation(t *testing.T) {
	s := openTestStore(t)
	a := store.NewAllocator(s)

	ids, err := a.PreAssignForChunk(map[string]int{"C": 10}, 2, 0, 0)
	if err != nil {
		t.Fatalf("pre-assign for chunk: %v", err)
	}
	want := []string{"C010", "C011"}
	got := ids["C"]
	if len(got) != len(want) {
		t.Fatalf("len(ids[C]) = %d, want %d", len(got), len(want))
	}
	for i, id := range got {
		if id != want[i] {
			t.Errorf("ids[C][%d] = %q, want %q", i, id, want[i])
		}
	}
}

func TestBufferLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.AddBufferItem(store.BufferItem{Path: "a.md", ItemType: "doc_edit", Chars: 100, Date: "2026-01-01"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if n, _ := s.GetBufferChars(); n != 100 {
		t.Errorf("chars = %d, want 100", n)
	}

	id2, err := s.AddBufferItem(store.BufferItem{Path: "b.md", ItemType: "doc_edit", Chars: 50, Date: "2026-01-02"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	items, err := s.GetBufferItems()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	if err := s.ConsumeBuffer([]int64{id}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if n, _ := s.GetBufferChars(); n != 50 {
		t.Errorf("chars after consume = %d, want 50", n)
	}

	if err := s.ClearBuffer(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := s.GetBufferChars(); n != 0 {
		t.Errorf("chars after clear = %d, want 0", n)
	}
	items, _ = s.GetBufferItems()
	if len(items) != 0 {
		t.Errorf("len(items) after clear = %d, want 0", len(items))
	}
	_ = id2
}

func TestDispatchLifecycleRejectsBackwardTransition(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateDispatch(1, "/tmp/in.md", "/tmp/prompt.md")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateDispatchState(id, store.StateDispatched, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateDispatchState(id, store.StateValidated, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	err = s.UpdateDispatchState(id, store.StateBuilding, "")
	if err == nil {
		t.Fatal("expected error moving backward to building")
	}

	d, err := s.GetDispatch(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.State != store.StateValidated {
		t.Errorf("state after rejected transition = %q, want validated", d.State)
	}
}

func TestRecoverOnStartupDropsBuildingDispatches(t *testing.T) {
	s := openTestStore(t)

	building, err := s.CreateDispatch(1, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dispatched, err := s.CreateDispatch(2, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateDispatchState(dispatched, store.StateDispatched, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	recovered, err := s.RecoverOnStartup()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 1 || recovered[0].ID != dispatched {
		t.Fatalf("recovered = %+v, want single dispatched entry", recovered)
	}

	if _, err := s.GetDispatch(building); err == nil {
		t.Error("expected building dispatch to be deleted")
	}
}

func TestServerStateFoldFromRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if from, err := s.GetFoldFrom(); err != nil || from != "" {
		t.Fatalf("initial fold_from = %q, %v", from, err)
	}
	if err := s.SetFoldFrom("abc123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if from, err := s.GetFoldFrom(); err != nil || from != "abc123" {
		t.Fatalf("fold_from = %q, %v, want abc123", from, err)
	}
	if err := s.ClearFoldFrom(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if from, err := s.GetFoldFrom(); err != nil || from != "" {
		t.Fatalf("fold_from after clear = %q, %v", from, err)
	}
}

func TestUpdateServerStateRejectsUnknownKey(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateServerState(map[string]any{"not_a_real_key": 1}); err == nil {
		t.Fatal("expected error for unknown server state key")
	}
}
