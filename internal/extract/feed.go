package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/docassist/internal/format"
)

// maxFeedItems caps how many entries of a feed go into the text.
const maxFeedItems = 25

func isFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		return true
	}
	if strings.Contains(ct, "html") {
		return false
	}
	return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
}

// parseFeed joins the title and text of each feed entry into one document.
func parseFeed(body []byte) (*Page, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var blocks []string
	for i, item := range feed.Items {
		if i >= maxFeedItems {
			break
		}
		text := item.Description
		if text == "" {
			text = item.Content
		}
		text = format.StripTags(text)
		title := collapseSpace(item.Title)

		switch {
		case title != "" && text != "":
			blocks = append(blocks, title+"\n"+text)
		case title != "":
			blocks = append(blocks, title)
		case text != "":
			blocks = append(blocks, text)
		}
	}

	return &Page{
		Title: collapseSpace(feed.Title),
		Text:  strings.Join(blocks, "\n\n"),
	}, nil
}
