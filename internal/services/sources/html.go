package sources

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

var (
	htmlTagPattern = regexp.MustCompile(`(?i)<\s*(html|head|body|div|p|br|table|tr|td|span|a|ul|ol|li|h[1-6]|strong|em|b|i)[\s>/]`)
	spacePattern   = regexp.MustCompile(`[ \t]+`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether a body is marked-up rather than plain
// text. A stray angle bracket is not enough; a known tag must open.
func LooksLikeHTML(body string) bool {
	return htmlTagPattern.MatchString(body)
}

// NormalizeBody converts an HTML email body to markdown so the pipeline
// always sees readable text. Conversion failures fall back to plain text
// extraction, never to an empty body.
func NormalizeBody(body string, logger arbor.ILogger) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || !LooksLikeHTML(trimmed) {
		return trimmed
	}

	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(trimmed)
	if err == nil {
		if out := tidyText(converted); out != "" {
			return out
		}
	}

	if err != nil {
		logger.Warn().Err(err).Msg("HTML to markdown conversion failed, extracting text")
	} else {
		logger.Warn().Msg("HTML to markdown conversion was empty, extracting text")
	}
	return extractText(trimmed)
}

// extractText strips markup with a DOM parse, keeping the visible text.
func extractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script, style").Remove()
	return tidyText(doc.Text())
}

// tidyText collapses runs of spaces and excess blank lines.
func tidyText(s string) string {
	s = spacePattern.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
