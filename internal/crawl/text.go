package crawl

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// strippedSelectors are removed before text extraction.
const strippedSelectors = "script, style, nav, footer, header, noscript, iframe, svg"

// blockSelectors get surrounding whitespace so adjacent blocks do not run
// together in the extracted text.
const blockSelectors = "p, div, li, td, th, tr, section, article, h1, h2, h3, h4, h5, h6, address, dd, dt, span, a"

// parsedPage is the cleaned content of one fetched HTML document.
type parsedPage struct {
	Text  string
	Links []string
}

// parsePage extracts clean text and absolute same-document links.
func parsePage(body []byte, base *url.URL, maxChars int) (*parsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse html")
	}
	links := extractLinks(doc, base)
	return &parsedPage{Text: extractText(doc, maxChars), Links: links}, nil
}

func extractText(doc *goquery.Document, maxChars int) string {
	doc.Find(strippedSelectors).Remove()
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml(" ").AppendHtml(" ")
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := cleanText(root.Text())
	if maxChars > 0 {
		text = model.TruncateRunes(text, maxChars)
	}
	return text
}

// cleanText NFKC-normalizes s and collapses all whitespace runs.
func cleanText(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// extractLinks resolves a[href] against base, keeping http(s) links with
// fragments and query strings removed, deduplicated in document order.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		u.RawQuery = ""
		u.ForceQuery = false
		key := u.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, key)
	})
	return links
}
