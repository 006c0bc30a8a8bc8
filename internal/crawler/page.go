package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var refreshURLPrefix = regexp.MustCompile(`(?i)^url\s*=`)

// Page holds the metadata taken from an HTML body.
type Page struct {
	Title    string
	HasTitle bool
	// Refresh is the raw meta-refresh target, unresolved.
	Refresh string
}

// ParsePage extracts the first title and the first usable meta-refresh target.
func ParsePage(body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{}

	if title := doc.Find("title").First(); title.Length() > 0 {
		page.Title = strings.TrimSpace(title.Text())
		page.HasTitle = true
	}

	doc.Find("meta").EachWithBreak(func(i int, s *goquery.Selection) bool {
		equiv, ok := s.Attr("http-equiv")
		if !ok || !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		if target := RefreshTarget(s.AttrOr("content", "")); target != "" {
			page.Refresh = target
			return false
		}
		return true
	})

	return page, nil
}

// RefreshTarget pulls the URL out of a meta-refresh content attribute such as
// `0; url='/next'`. It returns "" when there is no target.
func RefreshTarget(content string) string {
	parts := strings.SplitN(content, ";", 2)
	if len(parts) < 2 {
		return ""
	}

	target := strings.TrimSpace(parts[1])
	target = refreshURLPrefix.ReplaceAllString(target, "")
	target = strings.TrimSpace(target)

	// Some pages quote the URL: content="0; url='http://...'"
	if n := len(target); n >= 2 && (target[0] == '\'' || target[0] == '"') && target[n-1] == target[0] {
		target = strings.TrimSpace(target[1 : n-1])
	}

	return target
}

// ResolveTarget resolves ref against base. Only http and https results are
// accepted.
func ResolveTarget(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}

	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse target %q: %w", ref, err)
	}

	resolved := baseURL.ResolveReference(refURL)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme in target %q", ref)
	}
	if resolved.Host == "" {
		return "", fmt.Errorf("target %q has no host", ref)
	}

	return resolved.String(), nil
}
