package worker

import (
	"strings"
	"testing"

	"github.com/mailsift/mailsift/internal/mail"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(mail.Content{
		Subject: "Invoice overdue",
		Sender:  "billing@example.com",
		Body:    "Pay now",
		Links:   []string{"https://a.example", "https://b.example"},
	})

	for _, want := range []string{
		"Subject: Invoice overdue",
		"Sender: billing@example.com",
		"Links: https://a.example https://b.example",
		"Pay now",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	if !strings.HasSuffix(p, "JSON verdict: ") {
		t.Errorf("prompt does not end with the completion cue:\n%s", p)
	}
}

func TestBuildPromptNoLinks(t *testing.T) {
	p := BuildPrompt(mail.Content{Subject: "hi", Sender: "a@b.c", Body: "hello"})
	if !strings.Contains(p, "Links: none") {
		t.Errorf("prompt missing explicit empty link list:\n%s", p)
	}
}
