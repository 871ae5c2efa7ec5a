package worker

import (
	"fmt"
	"strings"

	"github.com/mailsift/mailsift/internal/mail"
)

// Instructions is the fixed classification prefix decoded into the engine
// session once per load. The small models this runs on do not reliably
// separate system and user turns, so instructions and email fields travel
// in one flat prompt.
const Instructions = `You are an email security analyst. You will be shown one email: its subject, sender address, the links it contains, and its body. Classify the threat it poses.

Respond with a single JSON object with exactly these fields:
- "brief_analysis": one or two sentences justifying the classification
- "type": one of "safe", "spam", "unknown_threat", "malware", "data_exfiltration", "phishing", "scam", "extortion"
- "confidence": a number from 0 up to but not including 1

Judge only from the email itself. Mismatched link targets, urgency, credential requests, payment demands and threats are strong signals. A normal personal or business message is "safe".
`

// BuildPrompt renders the per-email suffix appended after the fixed
// instructions. Clients build this from normalized content so the daemon
// never needs the raw message.
func BuildPrompt(c mail.Content) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nSubject: %s\n", c.Subject)
	fmt.Fprintf(&b, "Sender: %s\n", c.Sender)
	if len(c.Links) == 0 {
		b.WriteString("Links: none\n")
	} else {
		fmt.Fprintf(&b, "Links: %s\n", strings.Join(c.Links, " "))
	}
	fmt.Fprintf(&b, "Body:\n%s\n\nJSON verdict: ", c.Body)
	return b.String()
}
