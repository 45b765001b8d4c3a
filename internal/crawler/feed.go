package crawler

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// feedItem is one entry from an RSS or Atom feed after lenient parsing.
type feedItem struct {
	Title     string
	Link      string
	Content   string
	Published *time.Time
	Authors   []string
}

// rssDocument covers RSS 0.9x/1.0/2.0 with the fields we care about. Unknown
// elements are ignored by the decoder, which is most of the leniency.
type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// RSS 1.0 places items as siblings of channel.
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Encoded     string `xml:"encoded"` // content:encoded
	PubDate     string `xml:"pubDate"`
	Published   string `xml:"published"`
	Updated     string `xml:"updated"`
	DCDate      string `xml:"date"` // dc:date
	Creator     string `xml:"creator"`
	Author      string `xml:"author"`
}

type atomDocument struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// feedDateLayouts are tried in order for every date field. Feeds in the wild
// use all of these.
var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// parseFeed decodes an RSS or Atom feed, surviving encoding quirks and
// unknown dialect extensions. It tries RSS first, then Atom.
func parseFeed(r io.Reader) (title string, items []feedItem, err error) {
	data, err := io.ReadAll(io.LimitReader(r, 4<<20))
	if err != nil {
		return "", nil, fmt.Errorf("read feed: %w", err)
	}

	var rss rssDocument
	if decodeErr := decodeXML(data, &rss); decodeErr == nil {
		collected := rss.Channel.Items
		if len(collected) == 0 {
			collected = rss.Items
		}
		if len(collected) > 0 {
			for _, it := range collected {
				items = append(items, it.toItem())
			}
			return rss.Channel.Title, items, nil
		}
	}

	var atom atomDocument
	if decodeErr := decodeXML(data, &atom); decodeErr == nil && len(atom.Entries) > 0 {
		for _, e := range atom.Entries {
			items = append(items, e.toItem())
		}
		return atom.Title, items, nil
	}

	return "", nil, fmt.Errorf("unrecognized feed format")
}

// decodeXML decodes with lenient charset handling: declared encodings are
// honored via the charset reader, undeclared non-UTF-8 bytes fall back to
// best-effort.
func decodeXML(data []byte, v interface{}) error {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Strict = false
	return decoder.Decode(v)
}

func (it rssItem) toItem() feedItem {
	content := it.Encoded
	if content == "" {
		content = it.Description
	}
	item := feedItem{
		Title:     strings.TrimSpace(it.Title),
		Link:      strings.TrimSpace(it.Link),
		Content:   htmlToText(content),
		Published: parseFeedDate(it.Published, it.PubDate, it.Updated, it.DCDate),
	}
	for _, author := range []string{it.Creator, it.Author} {
		if a := strings.TrimSpace(author); a != "" {
			item.Authors = append(item.Authors, a)
		}
	}
	return item
}

func (e atomEntry) toItem() feedItem {
	content := e.Content
	if content == "" {
		content = e.Summary
	}
	link := ""
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			link = l.Href
			break
		}
	}
	if link == "" && len(e.Links) > 0 {
		link = e.Links[0].Href
	}
	item := feedItem{
		Title:     strings.TrimSpace(e.Title),
		Link:      strings.TrimSpace(link),
		Content:   htmlToText(content),
		Published: parseFeedDate(e.Published, e.Updated),
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			item.Authors = append(item.Authors, name)
		}
	}
	return item
}

// parseFeedDate tries each candidate field against each known layout,
// returning the first parse that sticks. A feed with no parseable date gets
// a nil published time rather than an error.
func parseFeedDate(candidates ...string) *time.Time {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, layout := range feedDateLayouts {
			if ts, err := time.Parse(layout, candidate); err == nil {
				utc := ts.UTC()
				return &utc
			}
		}
	}
	return nil
}
