// File: internal/funnel/extract.go

package funnel

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
)

// codePatterns are tried in order against the mail body; the first capture
// wins. The cascade runs from labeled matches down to bare six-character
// runs, so a mail that spells out "verification code: XXXXXX" beats an
// incidental token elsewhere in the body.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)verification code[:\s]+([A-Z0-9]{6})`),
	regexp.MustCompile(`(?i)code[:\s]+([A-Z0-9]{6})`),
	regexp.MustCompile(`(?i)([A-Z0-9]{6})`),
	regexp.MustCompile(`(?i)(\d{6})`),
	regexp.MustCompile(`(?i)([A-Z]{6})`),
}

// ExtractCode pulls a six-character verification code out of a mail body.
// The plain text part is preferred; the HTML part is stripped to text as a
// fallback. Subject and sender are not consulted.
func ExtractCode(mail *mailbox.Mail) (string, bool) {
	if mail == nil {
		return "", false
	}

	body := mail.Text
	if strings.TrimSpace(body) == "" {
		body = htmlText(mail.HTML)
	}
	if strings.TrimSpace(body) == "" {
		return "", false
	}

	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// htmlText flattens an HTML document to its visible text. Script and style
// contents are dropped. A document that fails to parse is returned raw so
// the code patterns still get a chance at it.
func htmlText(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
