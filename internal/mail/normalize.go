package mail

import (
	"regexp"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	urlRe        = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// Content is the normalized field tuple the classifier and fingerprint
// operate on. Equal Content values fingerprint identically.
type Content struct {
	Subject string
	Body    string
	Sender  string
	Links   []string
}

var converter = newConverter()

func newConverter() *md.Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return c
}

// Normalize reduces a parsed message to its normalized tuple. HTML bodies
// are converted to markdown so visually hidden markup cannot make two
// identical-looking emails fingerprint differently.
func Normalize(msg *Message) Content {
	body := msg.TextBody
	links := extractTextLinks(msg.TextBody)

	if msg.HTMLBody != "" {
		links = append(links, extractHTMLLinks(msg.HTMLBody)...)
		if converted, err := converter.ConvertString(msg.HTMLBody); err == nil && converted != "" {
			body = converted
		} else if body == "" {
			body = msg.HTMLBody
		}
		links = append(links, extractTextLinks(body)...)
	}

	return Content{
		Subject: collapseSpace(msg.Subject),
		Body:    collapseSpace(body),
		Sender:  strings.ToLower(strings.TrimSpace(msg.Sender)),
		Links:   normalizeLinks(links),
	}
}

// collapseSpace trims and collapses all whitespace runs to single spaces.
func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// extractTextLinks pulls bare URLs out of plain text.
func extractTextLinks(text string) []string {
	return urlRe.FindAllString(text, -1)
}

// extractHTMLLinks collects anchor hrefs, the actual click targets. For
// phishing these routinely differ from the visible link text.
func extractHTMLLinks(htmlBody string) []string {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return extractTextLinks(htmlBody)
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" && strings.HasPrefix(a.Val, "http") {
					links = append(links, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// normalizeLinks sorts and deduplicates so link order in the source cannot
// perturb the fingerprint.
func normalizeLinks(links []string) []string {
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		l = strings.TrimRight(strings.TrimSpace(l), ".,;")
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
