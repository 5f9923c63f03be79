package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser renders campaign HTML bodies as the text/plain alternative
type HTMLParser struct {
	whitespaceRegex *regexp.Regexp
	newlineRegex    *regexp.Regexp
	invisibleRegex  *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		whitespaceRegex: regexp.MustCompile(`[^\S\n]+`),
		newlineRegex:    regexp.MustCompile(`\n{3,}`),
		// Zero-width spaces, soft hyphens and similar
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{2060}-\x{2064}]+`),
	}
}

// Parse converts an HTML body to plain text. Links keep their target in
// brackets and list items get a leading dash so the text part stays usable.
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		label := strings.TrimSpace(s.Text())
		if href == "" || strings.HasPrefix(href, "#") || href == label {
			return
		}
		if label == "" {
			s.SetText(href)
			return
		}
		s.AppendHtml(" [" + escapeText(href) + "]")
	})

	doc.Find("li").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, table, ul, ol, blockquote").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})
	// Paragraph-like blocks are separated by a blank line
	doc.Find("p, h1, h2, h3, h4, h5, h6, table, ul, ol, blockquote").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})

	text := doc.Text()
	text = p.invisibleRegex.ReplaceAllString(text, "")
	text = p.whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = p.newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

func escapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
