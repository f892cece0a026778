package domain

import "time"

// Collection identifies which of the two curated feeds an article belongs to.
// Membership is mutually exclusive: an article lives in exactly one.
type Collection string

const (
	CollectionNews       Collection = "news_articles"
	CollectionComingSoon Collection = "news_comingsoon"
)

// Valid reports whether the collection is one of the two known tags.
func (c Collection) Valid() bool {
	return c == CollectionNews || c == CollectionComingSoon
}

// RawFeedItem is the ephemeral output of the RSS parser, consumed by the
// rewrite engine. Title and Link are non-empty by construction: the parser
// drops items missing either.
type RawFeedItem struct {
	Title       string
	Link        string
	PublishedAt string
	ContentHTML string
	ContentText string
	ImageURL    string
	Published   Timestamp
}

// Rewrite is the structured result of an LLM rewrite. All fields empty means
// the rewrite feature is unavailable (no credential configured); callers fall
// back to the raw source fields.
type Rewrite struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Body     string   `json:"body"`
	Bullets  []string `json:"bullets"`
}

// Empty reports whether the rewrite produced nothing usable.
func (r Rewrite) Empty() bool {
	return r.Title == "" && r.Body == ""
}

// Article is the persisted entity. DocID is the percent-encoded source link
// and acts as the primary key; PublicID is the short hash fingerprint used in
// shareable URLs. SourceURL is the stable identity and never mutates after
// creation; the rewritten fields may change on every refresh of the same link.
type Article struct {
	DocID         string     `json:"id"`
	PublicID      string     `json:"publicId,omitempty"`
	Collection    Collection `json:"collection"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle,omitempty"`
	Body          string     `json:"body"`
	Bullets       []string   `json:"bullets,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	SourceURL     string     `json:"sourceUrl"`
	SourceTitle   string     `json:"sourceTitle"`
	PublishedAt   string     `json:"publishedAt"`
	PublishedAtTS int64      `json:"publishedAtTs"`
}

// Timestamp is a resolved-or-unknown instant. It is derived exactly once, at
// the parsing boundary, so the rest of the pipeline never re-interprets feed
// date strings.
type Timestamp struct {
	Millis int64
	Known  bool
}

// TimestampFrom resolves an already parsed feed time into a Timestamp.
func TimestampFrom(t *time.Time) Timestamp {
	if t == nil || t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Millis: t.UnixMilli(), Known: true}
}

// feedTimeLayouts covers the date formats the curated feeds have been seen to
// emit. Consulted only when the feed library could not resolve the date.
var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseFeedTime interprets a raw feed date string. Unparseable input yields
// an unknown Timestamp, never an error.
func ParseFeedTime(raw string) Timestamp {
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Timestamp{Millis: t.UnixMilli(), Known: true}
		}
	}
	return Timestamp{}
}
