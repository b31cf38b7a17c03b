package chat

import (
	"strings"
	"testing"
)

func TestRenderContextLimitsAndLabels(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "second"},
		{Role: RoleUser, Content: "third"},
	}
	got := RenderContext(messages, 2)
	want := "Assistant: second\nUser: third"
	if got != want {
		t.Fatalf("RenderContext() = %q, want %q", got, want)
	}
}

func TestRenderContextEmpty(t *testing.T) {
	if got := RenderContext(nil, 5); got != "" {
		t.Fatalf("RenderContext(nil) = %q", got)
	}
}

func TestNewIDIsUniqueHex(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatal("two ids are equal")
	}
	if len(a) != 32 {
		t.Fatalf("id length = %d", len(a))
	}
}

func TestTitleFromQuestion(t *testing.T) {
	if got := TitleFromQuestion("  how   many users? "); got != "how many users?" {
		t.Fatalf("title = %q", got)
	}
	if got := TitleFromQuestion(""); got != "New conversation" {
		t.Fatalf("title = %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := TitleFromQuestion(long); len(got) != 80 || !strings.HasSuffix(got, "...") {
		t.Fatalf("long title = %q", got)
	}
}
