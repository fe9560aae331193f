package fetcher

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Link is an anchor target found on a listing page.
type Link struct {
	// Href is the attribute value exactly as written in the page.
	Href string
	// URL is Href resolved against the page URL.
	URL string
}

// ExtractLinks parses HTML and returns every anchor that has an href, in
// document order. Relative hrefs are resolved against pageURL; hrefs that do
// not parse as URLs are kept with URL equal to Href.
func ExtractLinks(r io.Reader, pageURL string) ([]Link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrap(err, "links: parse page url")
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "links: parse html")
	}

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		resolved := href
		if ref, err := url.Parse(href); err == nil {
			resolved = base.ResolveReference(ref).String()
		}
		links = append(links, Link{Href: href, URL: resolved})
	})

	return links, nil
}
