package engine

import (
	"strings"
	"testing"

	"github.com/mailsift/mailsift/internal/protocol"
)

func TestVerdictGrammarCoversCategories(t *testing.T) {
	g := VerdictGrammar()
	for _, c := range protocol.Categories {
		if !strings.Contains(g, c) {
			t.Errorf("grammar missing category %q", c)
		}
	}
	// The error category is reserved for daemon-side failures and must not
	// be producible by the model.
	if strings.Contains(g, `\"error\"`) {
		t.Error("grammar permits the error category")
	}
}

func TestVerdictGrammarShape(t *testing.T) {
	g := VerdictGrammar()
	for _, rule := range []string{"root ::=", "category ::=", "confidence ::=", "string ::="} {
		if !strings.Contains(g, rule) {
			t.Errorf("grammar missing rule %q", rule)
		}
	}
	// Confidence must stay below 1.
	if !strings.Contains(g, `confidence ::= "0"`) {
		t.Error("confidence rule should anchor at a leading zero")
	}
}
