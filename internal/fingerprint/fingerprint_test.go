package fingerprint

import (
	"testing"

	"github.com/mailsift/mailsift/internal/mail"
)

func TestSumDeterministic(t *testing.T) {
	c := mail.Content{
		Subject: "Invoice overdue",
		Body:    "Please pay immediately",
		Sender:  "billing@example.com",
		Links:   []string{"https://example.com/pay"},
	}
	if Sum(c) != Sum(c) {
		t.Fatal("same content produced different fingerprints")
	}
}

func TestSumFieldSeparation(t *testing.T) {
	// Shifting bytes between adjacent fields must change the hash.
	a := mail.Content{Subject: "ab", Body: "c"}
	b := mail.Content{Subject: "a", Body: "bc"}
	if Sum(a) == Sum(b) {
		t.Fatal("field boundary shift did not change fingerprint")
	}
}

func TestSumSensitivity(t *testing.T) {
	base := mail.Content{
		Subject: "Hello",
		Body:    "body",
		Sender:  "a@example.com",
		Links:   []string{"https://a.example"},
	}
	variants := []mail.Content{
		{Subject: "Hello!", Body: "body", Sender: "a@example.com", Links: []string{"https://a.example"}},
		{Subject: "Hello", Body: "body.", Sender: "a@example.com", Links: []string{"https://a.example"}},
		{Subject: "Hello", Body: "body", Sender: "b@example.com", Links: []string{"https://a.example"}},
		{Subject: "Hello", Body: "body", Sender: "a@example.com", Links: []string{"https://b.example"}},
		{Subject: "Hello", Body: "body", Sender: "a@example.com", Links: nil},
	}
	want := Sum(base)
	for i, v := range variants {
		if Sum(v) == want {
			t.Errorf("variant %d collided with base fingerprint", i)
		}
	}
}

func TestSumLinkCountMatters(t *testing.T) {
	a := mail.Content{Links: []string{"xy"}}
	b := mail.Content{Links: []string{"x", "y"}}
	if Sum(a) == Sum(b) {
		t.Fatal("link split collided")
	}
}
