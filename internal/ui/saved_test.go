package ui

import (
	"strings"
	"testing"

	"github.com/abelbrown/sharkbox/internal/store"
)

func TestSavedThreadRoundTrip(t *testing.T) {
	srv, th := threadFixture(t)
	h := newHarness(t, srv, harnessOpts{})

	h.keys("enter", "b")
	box := h.top().(*boxScreen)
	if !box.marks[th.ItemID()].Saved {
		t.Fatal("b should bookmark the selected thread")
	}
	if !strings.Contains(h.app.View(), "*") {
		t.Error("saved thread should carry a marker")
	}

	h.keys("S")
	saved, ok := h.top().(*savedScreen)
	if !ok {
		t.Fatalf("top is %T, want *savedScreen", h.top())
	}
	if len(saved.marks) != 1 || saved.marks[0].ID != th.ItemID() {
		t.Fatalf("saved marks = %+v", saved.marks)
	}
	if !strings.Contains(h.app.View(), "thread 00") {
		t.Error("saved list should show the thread title")
	}

	h.keys("enter")
	ts, ok := h.top().(*threadScreen)
	if !ok || ts.id != th.ID {
		t.Fatalf("enter should open the saved thread, top is %T", h.top())
	}
	if !ts.saved[savedKey(store.KindThread, th.ItemID())] {
		t.Error("thread screen should know the thread is saved")
	}

	// Unsave from the thread; the list underneath follows.
	h.keys("b", "esc")
	if len(saved.marks) != 0 {
		t.Errorf("saved list should be empty after unsaving, got %+v", saved.marks)
	}
	if !strings.Contains(h.app.View(), "No bookmarks yet.") {
		t.Errorf("empty saved list view:\n%s", h.app.View())
	}
}

func TestSavedCommentOpensDeepLink(t *testing.T) {
	srv, th := threadFixture(t)
	comments := seedComments(srv, th.ID, 20, "sub-alice", "alice")
	h := newHarness(t, srv, harnessOpts{start: Start{ThreadID: th.ID, CommentID: comments[17].ID}})

	h.keys("b")
	m, ok, err := h.marks.Get(store.KindComment, comments[17].ItemID())
	if err != nil || !ok || !m.Saved {
		t.Fatalf("comment mark = %+v ok=%v err=%v", m, ok, err)
	}
	if m.Box != th.ItemID() {
		t.Errorf("comment mark should remember its thread, got %q", m.Box)
	}

	h.keys("esc", "S", "enter")
	ts, ok := h.top().(*threadScreen)
	if !ok {
		t.Fatalf("top is %T, want *threadScreen", h.top())
	}
	r, ok := ts.selectedRow()
	if !ok || r.Comment.ID != comments[17].ID {
		t.Errorf("selected %+v, want the saved comment", r.Comment)
	}
}

func TestSavedWithoutStore(t *testing.T) {
	s := newSavedScreen(&Env{})
	msg := s.load()()
	s.Update(msg)
	if s.Err() == nil {
		t.Error("saved screen without a store should report it")
	}
}
