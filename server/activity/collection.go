package activity

import (
	"fmt"
	"net/url"
	"strconv"
)

type OrderedCollection struct {
	Context      any    `json:"@context,omitempty"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	First        string `json:"first,omitempty"`
	Last         string `json:"last,omitempty"`
	OrderedItems []any  `json:"orderedItems,omitempty"`
}

type OrderedCollectionPage struct {
	Context      any    `json:"@context,omitempty"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	PartOf       string `json:"partOf"`
	TotalItems   int    `json:"totalItems"`
	Next         string `json:"next,omitempty"`
	Prev         string `json:"prev,omitempty"`
	OrderedItems []any  `json:"orderedItems"`
}

// PageURL returns the url of page n of a collection.
func PageURL(collectionID string, n int) string {
	return fmt.Sprintf("%s?page=%d", collectionID, n)
}

// LastPage is the number of the last page. An empty collection still has page 1.
func LastPage(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// NewCollection builds the collection summary with first and last page links.
func NewCollection(id string, total, perPage int) OrderedCollection {
	return OrderedCollection{
		Context:    Context,
		ID:         id,
		Type:       OrderedCollectionType,
		TotalItems: total,
		First:      PageURL(id, 1),
		Last:       PageURL(id, LastPage(total, perPage)),
	}
}

// NewCollectionPage builds page n of a collection holding items.
func NewCollectionPage(id string, n, total, perPage int, items []any) OrderedCollectionPage {
	if items == nil {
		items = []any{}
	}
	page := OrderedCollectionPage{
		Context:      Context,
		ID:           PageURL(id, n),
		Type:         OrderedCollectionPageType,
		PartOf:       id,
		TotalItems:   total,
		OrderedItems: items,
	}
	if n < LastPage(total, perPage) {
		page.Next = PageURL(id, n+1)
	}
	if n > 1 {
		page.Prev = PageURL(id, n-1)
	}
	return page
}

// PageNumber reads ?page=N. It returns 0 when the summary was requested.
func PageNumber(q url.Values) int {
	n, err := strconv.Atoi(q.Get("page"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}
