package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st := openMem(t)

	var name string
	err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='marks'").Scan(&name)
	if err != nil {
		t.Fatalf("marks table not created: %v", err)
	}
	if name != "marks" {
		t.Errorf("expected table name 'marks', got %q", name)
	}
}

func TestOpenFileUsesWAL(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "sharkbox.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	var mode string
	if err := st.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestMarkReadTracksNewComments(t *testing.T) {
	st := openMem(t)

	if err := st.MarkRead(KindThread, "42", "Hello", "go", 3); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	m, ok, err := st.Get(KindThread, "42")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if !m.Read || m.SeenComments != 3 || m.Title != "Hello" || m.Box != "go" {
		t.Errorf("unexpected mark: %+v", m)
	}
	if m.ReadAt.IsZero() {
		t.Error("ReadAt not set")
	}
	if got := m.NewComments(7); got != 4 {
		t.Errorf("NewComments(7) = %d, want 4", got)
	}
	if got := m.NewComments(2); got != 0 {
		t.Errorf("NewComments(2) = %d, want 0", got)
	}

	// Re-reading updates the baseline but keeps the title when none is given.
	if err := st.MarkRead(KindThread, "42", "", "", 7); err != nil {
		t.Fatal(err)
	}
	m, _, _ = st.Get(KindThread, "42")
	if m.SeenComments != 7 || m.Title != "Hello" {
		t.Errorf("after re-read: %+v", m)
	}
}

func TestUnreadMarkHasNoNewComments(t *testing.T) {
	if got := (Mark{}).NewComments(10); got != 0 {
		t.Errorf("NewComments on unread mark = %d, want 0", got)
	}
}

func TestGetMissing(t *testing.T) {
	st := openMem(t)

	_, ok, err := st.Get(KindThread, "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected no mark")
	}
}

func TestMarkSavedToggle(t *testing.T) {
	st := openMem(t)

	if err := st.MarkSaved(KindThread, "1", "First", "go", true); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkSaved(KindThread, "2", "Second", "rust", true); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkSaved(KindBox, "go", "Go", "", true); err != nil {
		t.Fatal(err)
	}

	saved, err := st.Saved(KindThread, 10)
	if err != nil {
		t.Fatalf("Saved failed: %v", err)
	}
	if len(saved) != 2 || saved[0].ID != "2" || saved[1].ID != "1" {
		t.Fatalf("Saved = %+v, want [2 1]", saved)
	}

	if err := st.MarkSaved(KindThread, "2", "", "", false); err != nil {
		t.Fatal(err)
	}
	saved, _ = st.Saved(KindThread, 10)
	if len(saved) != 1 || saved[0].ID != "1" {
		t.Errorf("after unsave: %+v", saved)
	}
	m, _, _ := st.Get(KindThread, "2")
	if m.Title != "Second" || m.Saved || !m.SavedAt.IsZero() {
		t.Errorf("unsaved mark: %+v", m)
	}
}

func TestReadAndSavedAreIndependent(t *testing.T) {
	st := openMem(t)

	st.MarkSaved(KindThread, "5", "T", "go", true)
	st.MarkRead(KindThread, "5", "T", "go", 1)

	m, _, _ := st.Get(KindThread, "5")
	if !m.Read || !m.Saved {
		t.Errorf("expected read and saved: %+v", m)
	}
}

func TestMarksBatch(t *testing.T) {
	st := openMem(t)
	st.MarkRead(KindThread, "1", "a", "", 0)
	st.MarkRead(KindThread, "3", "c", "", 0)
	st.MarkRead(KindComment, "1", "", "", 0)

	marks, err := st.Marks(KindThread, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("Marks failed: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("got %d marks, want 2: %+v", len(marks), marks)
	}
	if _, ok := marks["2"]; ok {
		t.Error("unmarked id present")
	}
	if marks["1"].Kind != KindThread {
		t.Errorf("kind leak: %+v", marks["1"])
	}

	empty, err := st.Marks(KindThread, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Marks(nil) = %v, %v", empty, err)
	}
}

func TestEmptyIDRejected(t *testing.T) {
	st := openMem(t)
	if err := st.MarkRead(KindThread, "", "", "", 0); err == nil {
		t.Error("MarkRead accepted empty id")
	}
	if err := st.MarkSaved(KindThread, "", "", "", true); err == nil {
		t.Error("MarkSaved accepted empty id")
	}
}

func TestCounts(t *testing.T) {
	st := openMem(t)
	st.MarkRead(KindThread, "1", "", "", 0)
	st.MarkRead(KindThread, "2", "", "", 0)
	st.MarkSaved(KindThread, "2", "", "", true)

	read, saved, err := st.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if read != 2 || saved != 1 {
		t.Errorf("Counts = %d, %d; want 2, 1", read, saved)
	}
}

func TestConcurrentMarks(t *testing.T) {
	st := openMem(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("%d", i)
			if err := st.MarkRead(KindThread, id, "t", "", i); err != nil {
				t.Errorf("MarkRead %s: %v", id, err)
			}
			if _, _, err := st.Get(KindThread, id); err != nil {
				t.Errorf("Get %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	read, _, _ := st.Counts()
	if read != 20 {
		t.Errorf("read count = %d, want 20", read)
	}
}
