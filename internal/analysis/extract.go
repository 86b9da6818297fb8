package analysis

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// DefaultContentSelectors are tried, in order, when a target has no
// selectors of its own. Every matching region contributes text.
var DefaultContentSelectors = []string{
	".admission-info", ".application-info", ".enrollment-info",
	".admission", ".application", ".enrollment", ".registration",
	".admissions", ".applications", ".enrollments", ".registrations",
	"main", "article", ".content", ".main-content",
}

// blockElements get a separating space around their text so adjacent cells
// and paragraphs do not run together.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "aside": true, "nav": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "dl": true, "dt": true, "dd": true,
	"table": true, "tr": true, "td": true, "th": true, "br": true,
	"blockquote": true, "pre": true,
}

// Extractor turns raw HTML into normalised plain text. The zero value is not
// usable; build one with NewExtractor.
type Extractor struct {
	policy   *bluemonday.Policy
	defaults []string
}

func NewExtractor() *Extractor {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"main", "article", "section", "div", "span", "header", "footer", "aside", "nav",
		"p", "br", "h1", "h2", "h3", "h4", "h5", "h6", "strong", "b", "em", "i", "u", "small",
		"ul", "ol", "li", "dl", "dt", "dd", "blockquote", "pre", "font", "center",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption", "a", "label",
	)
	p.AllowAttrs("class", "id").Globally()
	return &Extractor{policy: p, defaults: DefaultContentSelectors}
}

// Extract returns the text of the selected regions with whitespace collapsed.
// With no selectors it reads the default content regions and falls back to the
// whole body when none of them exist. Selectors run against the original
// markup; each matched region is sanitised before its text is read. Script and
// style content never appears in the output. Malformed markup degrades to
// best-effort text.
func (e *Extractor) Extract(rawHTML string, selectors []string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()

	if len(selectors) > 0 {
		return normalizeSpace(e.regionText(doc, selectors))
	}

	content := e.regionText(doc, e.defaults)
	if strings.TrimSpace(content) == "" {
		content = e.cleanText(doc.Find("body"))
	}
	return normalizeSpace(content)
}

func (e *Extractor) regionText(doc *goquery.Document, selectors []string) string {
	var b strings.Builder
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		b.WriteString(strings.TrimSpace(e.cleanText(found)))
		b.WriteString(" ")
	}
	return b.String()
}

// cleanText sanitises every node of sel and returns the combined text.
func (e *Extractor) cleanText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, region *goquery.Selection) {
		raw, err := goquery.OuterHtml(region)
		if err != nil {
			return
		}
		frag, err := goquery.NewDocumentFromReader(strings.NewReader(e.policy.Sanitize(raw)))
		if err != nil {
			return
		}
		b.WriteString(nodeText(frag.Selection))
		b.WriteString(" ")
	})
	return b.String()
}

func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString(" ")
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// normalizeSpace collapses every whitespace run to a single space and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
