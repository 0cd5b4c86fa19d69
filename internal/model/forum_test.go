package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestThreadDecode(t *testing.T) {
	raw := `{"id":42,"title":"Hello","type":"TEXT","box":{"id":3,"slug":"go"},
		"userId":"u-1","upvotes":7,"downvotes":2,"userVote":true,"commentCount":5,
		"createdAt":"2025-03-01T12:00:00Z"}`

	var th Thread
	if err := json.Unmarshal([]byte(raw), &th); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if th.ItemID() != "42" {
		t.Errorf("ItemID = %q, want 42", th.ItemID())
	}
	if th.Score() != 5 {
		t.Errorf("Score = %d, want 5", th.Score())
	}
	if th.BoxSlug() != "go" {
		t.Errorf("BoxSlug = %q, want go", th.BoxSlug())
	}
	if th.UserVote == nil || !*th.UserVote {
		t.Errorf("UserVote = %v, want true", th.UserVote)
	}
}

func TestZeroIDHasNoItemID(t *testing.T) {
	if id := (Comment{}).ItemID(); id != "" {
		t.Errorf("ItemID of zero comment = %q, want empty", id)
	}
	if slug := (Thread{}).BoxSlug(); slug != "" {
		t.Errorf("BoxSlug without box = %q", slug)
	}
}

func TestParseAnchor(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"comment-123", 123, true},
		{"#comment-7", 7, true},
		{"55", 55, true},
		{"comment-", 0, false},
		{"comment-abc", 0, false},
		{"-4", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAnchor(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseAnchor(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
	if AnchorID(9) != "comment-9" {
		t.Errorf("AnchorID(9) = %q", AnchorID(9))
	}
}

func TestValidateBoxRequest(t *testing.T) {
	ok := BoxRequest{Name: "Go Programming", Slug: "go-programming", Access: AccessPublic}
	if err := Validate(ok); err != nil {
		t.Fatalf("valid box rejected: %v", err)
	}

	bad := BoxRequest{Name: "", Slug: "Not A Slug", Access: "SECRET"}
	err := Validate(bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want *ValidationError, got %T %v", err, err)
	}
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Rule
	}
	want := map[string]string{"Name": "required", "Slug": "slug", "Access": "oneof"}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s rule = %q, want %q (all: %v)", k, fields[k], v, fields)
		}
	}
}

func TestValidateCommentRequest(t *testing.T) {
	if err := Validate(CommentRequest{Content: "hi"}); err != nil {
		t.Errorf("top-level comment rejected: %v", err)
	}
	zero := int64(0)
	if err := Validate(CommentRequest{Content: "hi", ParentID: &zero}); err == nil {
		t.Error("parent id 0 accepted")
	}
	if err := Validate(CommentRequest{Content: strings.Repeat("x", 10001)}); err == nil {
		t.Error("oversized comment accepted")
	}
	if err := Validate(CommentRequest{}); err == nil {
		t.Error("empty comment accepted")
	}
}

func TestValidateThreadRequest(t *testing.T) {
	if err := Validate(ThreadRequest{Title: "t", Type: ThreadLink, Content: "https://go.dev"}); err != nil {
		t.Errorf("link thread rejected: %v", err)
	}
	err := Validate(ThreadRequest{Title: strings.Repeat("t", 301), Type: ThreadText})
	if err == nil || !strings.Contains(err.Error(), "Title: max=300") {
		t.Errorf("err = %v, want Title max violation", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Go Programming":  "go-programming",
		"  Rust & C++!  ": "rust-c",
		"already-a-slug":  "already-a-slug",
		"C# / .NET 2025":  "c-net-2025",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithVoteToggles(t *testing.T) {
	th := Thread{ID: 1, Upvotes: 3, Downvotes: 1}

	up := th.WithVote(true)
	if up.Upvotes != 4 || up.UserVote == nil || !*up.UserVote {
		t.Fatalf("first upvote: %+v", up)
	}
	if th.Upvotes != 3 || th.UserVote != nil {
		t.Fatalf("original changed: %+v", th)
	}

	withdrawn := up.WithVote(true)
	if withdrawn.Upvotes != 3 || withdrawn.UserVote != nil {
		t.Fatalf("repeat should withdraw: %+v", withdrawn)
	}

	flipped := up.WithVote(false)
	if flipped.Upvotes != 3 || flipped.Downvotes != 2 || flipped.UserVote == nil || *flipped.UserVote {
		t.Fatalf("flip: %+v", flipped)
	}
	if flipped.Score() != 1 {
		t.Errorf("Score() = %d, want 1", flipped.Score())
	}

	c := Comment{ID: 2}.WithVote(false)
	if c.Downvotes != 1 || c.Score() != -1 {
		t.Errorf("comment downvote: %+v", c)
	}
}
