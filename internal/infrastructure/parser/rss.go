// Package parser turns raw feed XML into RawFeedItems. Field extraction
// follows fixed priority rules: images from media:content, media:thumbnail,
// enclosure, then the first inline <img>; body text from content:encoded,
// then description, stripped of markup with whitespace collapsed.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsDesk/internal/domain"
)

// Parse extracts the well-formed items of a feed document, in document
// order. Items missing a non-empty title or link are excluded entirely.
// Malformed XML degrades to an empty result rather than an error; an empty
// feed is a valid (if useless) outcome.
func Parse(xmlText string) []domain.RawFeedItem {
	feed, err := gofeed.NewParser().ParseString(xmlText)
	if err != nil || feed == nil {
		return nil
	}

	items := make([]domain.RawFeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		contentHTML := item.Content
		if contentHTML == "" {
			contentHTML = item.Description
		}

		published := domain.TimestampFrom(item.PublishedParsed)
		if !published.Known {
			published = domain.ParseFeedTime(item.Published)
		}

		items = append(items, domain.RawFeedItem{
			Title:       title,
			Link:        link,
			PublishedAt: item.Published,
			ContentHTML: contentHTML,
			ContentText: stripHTML(contentHTML),
			ImageURL:    itemImage(item, contentHTML),
			Published:   published,
		})
	}

	return items
}

// itemImage resolves the lead image by priority: media:content url,
// media:thumbnail url, enclosure url, first <img src> inside the body HTML.
func itemImage(item *gofeed.Item, contentHTML string) string {
	if url := mediaExtensionURL(item, "content"); url != "" {
		return url
	}
	if url := mediaExtensionURL(item, "thumbnail"); url != "" {
		return url
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return firstImgSrc(contentHTML)
}

func mediaExtensionURL(item *gofeed.Item, element string) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media[element] {
		if url := ext.Attrs["url"]; url != "" {
			return url
		}
	}
	return ""
}

func firstImgSrc(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Find("img").First().AttrOr("src", "")
}

// stripHTML reduces an HTML fragment to plain text with internal whitespace
// collapsed to single spaces.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
