package rss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/zeebo/xxh3"

	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Item is our internal, minimalist representation of a blog post
type Item struct {
	ID        string
	Title     string
	Published time.Time
	Updated   time.Time
	Content   string
	URL       string
	Author    string
	Hashtags  []string
}

// hash fingerprints the parts of an item that are federated.
func (i Item) hash() uint64 {
	return xxh3.HashString(i.Title + "\x00" + i.Content + "\x00" + i.URL)
}

// ItemHandler is an interface that defines what to do when new RSS items are discovered
type ItemHandler interface {
	StatusCode(code int)   // called after any fetch, normally either 200 (OK) or 304 (NotModified)
	NewItem(item Item)     // a new feed item is discovered
	UpdatedItem(item Item) // a known item changed
}

type knownItem struct {
	updated time.Time
	hash    uint64
}

// FeedWatcher implements a small service to watch an RSS feed and discover new activity
type FeedWatcher struct {
	URL     string
	Client  http.Client
	Handler ItemHandler

	itemParser   ItemParser
	etag         string
	lastModified string
	known        map[string]knownItem // known guids to track new and updated items
}

type ItemParser interface {
	Parse(r io.Reader) ([]Item, error)
}

type gofeedParser struct {
	parser *gofeed.Parser // helper to parse rss, atom, json
}

// Parse an HTTP body as an RSS feed (or Atom or JSON, it turns out)
func (p gofeedParser) Parse(reader io.Reader) ([]Item, error) {
	feed, err := p.parser.Parse(reader)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0)
	for _, item := range feed.Items {
		parsedItem := Item{
			ID:       item.GUID,
			Title:    item.Title,
			Content:  item.Description,
			URL:      item.Link,
			Hashtags: item.Categories,
		}
		if parsedItem.ID == "" {
			parsedItem.ID = item.Link
		}
		if item.Content != "" {
			parsedItem.Content = item.Content
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			parsedItem.Author = item.Authors[0].Name
		}
		if item.PublishedParsed != nil {
			parsedItem.Published = *item.PublishedParsed
		} else {
			// Some feeds have mangled dates
			// e.g. CNN "Sat, 26 Nov 2022 11:04:03 GMT"
			parsedItem.Published = time.Now().UTC()
		}
		if item.UpdatedParsed != nil {
			parsedItem.Updated = *item.UpdatedParsed
		} else {
			parsedItem.Updated = parsedItem.Published
		}
		items = append(items, parsedItem)
	}
	return items, nil
}

// Check remote RSS feed for changes
func (c *FeedWatcher) Check(ctx context.Context) error {
	r, err := http.NewRequestWithContext(ctx, "GET", c.URL, nil)
	if err != nil {
		return err
	}
	if c.lastModified != "" {
		r.Header.Set("If-Modified-Since", c.lastModified)
		r.Header.Set("If-None-Match", c.etag)
	}

	resp, err := c.Client.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.Handler.StatusCode(resp.StatusCode)
	if resp.StatusCode == http.StatusNotModified {
		// Feed not modified, nothing to do
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response code %d", resp.StatusCode)
	}

	newItems, updatedItems, err := c.parseItems(resp.Body)
	if err != nil {
		return err
	}

	for _, item := range newItems {
		c.Handler.NewItem(item)
	}
	for _, item := range updatedItems {
		c.Handler.UpdatedItem(item)
	}

	if resp.Header.Get("ETag") != "" {
		c.etag = resp.Header.Get("ETag")
		c.lastModified = resp.Header.Get("Last-Modified")
	}

	return nil
}

func (c *FeedWatcher) AddKnown(item Item) {
	c.known[item.ID] = knownItem{updated: item.Updated, hash: item.hash()}
}

// parseItems splits the feed into items never seen before and known items
// that have a later update time or different content.
func (c *FeedWatcher) parseItems(body io.Reader) (newItems, updatedItems []Item, err error) {
	allItems, err := c.itemParser.Parse(body)
	if err != nil {
		telemetry.Error(err, "parsing feed %s", c.URL)
		return nil, nil, err
	}

	newItems = make([]Item, 0)
	updatedItems = make([]Item, 0)
	for _, item := range allItems {
		prev, ok := c.known[item.ID]
		c.AddKnown(item)
		switch {
		case !ok:
			newItems = append(newItems, item)
		case item.Updated.After(prev.updated) || item.hash() != prev.hash:
			updatedItems = append(updatedItems, item)
		}
	}

	// sort from oldest to newest
	byPublished := func(items []Item) {
		sort.Slice(items, func(i int, j int) bool {
			return items[i].Published.Before(items[j].Published)
		})
	}
	byPublished(newItems)
	byPublished(updatedItems)

	return newItems, updatedItems, nil
}

func (c *FeedWatcher) Watch(ctx context.Context, period time.Duration) {
	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	if err := c.Check(ctx); err != nil {
		telemetry.Error(err, "checking feed %s", c.URL)
	}
	for {
		select {
		case <-ctx.Done():
			telemetry.Log("stopped watching %s: %v", c.URL, ctx.Err())
			return
		case <-sigChannel:
			telemetry.Log("received end signal")
			return
		case <-ticker.C:
			// errors are retried on the next tick
			if err := c.Check(ctx); err != nil {
				telemetry.Error(err, "checking feed %s", c.URL)
			}
		}
	}
}
func NewFeedWatcher(url string, handler ItemHandler) FeedWatcher {
	return FeedWatcher{
		URL:     url,
		Client:  http.Client{},
		Handler: handler,
		itemParser: gofeedParser{
			parser: gofeed.NewParser(),
		},
		known: make(map[string]knownItem),
	}
}
