package engine

import (
	"fmt"
	"strings"

	"github.com/mailsift/mailsift/internal/protocol"
)

// VerdictGrammar returns the GBNF grammar constraining decoding to a JSON
// object with exactly the three verdict fields: a free-text justification,
// one of the known categories, and a confidence in [0,1).
func VerdictGrammar() string {
	quoted := make([]string, len(protocol.Categories))
	for i, c := range protocol.Categories {
		quoted[i] = fmt.Sprintf(`"\"%s\""`, c)
	}

	return fmt.Sprintf(`root ::= "{" ws "\"brief_analysis\":" ws string "," ws "\"type\":" ws category "," ws "\"confidence\":" ws confidence ws "}"
category ::= %s
confidence ::= "0" ("." digit digit?)?
string ::= "\"" char* "\""
char ::= [^"\\] | "\\" ["\\/bfnrt]
digit ::= [0-9]
ws ::= [ \t\n]*
`, strings.Join(quoted, " | "))
}
