package fetch

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the pagination strategy currently in use for a window.
type Kind int

const (
	// KindStart is the state before the first request of a window; no
	// pagination parameter is sent.
	KindStart Kind = iota
	// KindCursor follows an opaque cursor token returned by the source.
	KindCursor
	// KindPage follows a page index echoed by the source.
	KindPage
	// KindOffset advances a plain offset by the page size while pages come
	// back full.
	KindOffset
	// KindExhausted terminates the window.
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindCursor:
		return "cursor"
	case KindPage:
		return "page"
	case KindOffset:
		return "offset"
	case KindExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PageState is the explicit pagination state for one fetch window. The
// upstream source picks the strategy implicitly through its response shape;
// Next is the pure transition from (state, response) to the next state.
type PageState struct {
	Kind   Kind
	Cursor string
	Page   int
	Offset int
}

// Start returns the initial state of a window.
func Start() PageState {
	return PageState{Kind: KindStart}
}

// Page is one decoded upstream response page.
type Page struct {
	Records      []map[string]interface{}
	NextCursor   string
	PageIndex    int
	HasPageIndex bool
}

// Next computes the pagination state that follows the given response.
// Strategy preference: cursor token, then echoed page index, then offset.
// An empty page, or an offset page shorter than the requested size, ends the
// window.
func Next(prev PageState, resp Page, requested int) PageState {
	if len(resp.Records) == 0 {
		return PageState{Kind: KindExhausted}
	}

	if resp.NextCursor != "" && resp.NextCursor != prev.Cursor {
		return PageState{Kind: KindCursor, Cursor: resp.NextCursor}
	}

	if resp.HasPageIndex {
		return PageState{Kind: KindPage, Page: resp.PageIndex + 1}
	}

	if len(resp.Records) < requested {
		return PageState{Kind: KindExhausted}
	}
	return PageState{Kind: KindOffset, Offset: prev.Offset + requested}
}

// cursorKeys are the conventional names under which sources return a
// pagination token.
var cursorKeys = []string{"next_cursor", "cursor", "next"}

// ParsePage decodes an upstream response body. Accepted shapes are a bare
// JSON array and an object with a "data" array plus optional pagination
// keys. Anything else decodes to an empty page rather than an error.
func ParsePage(body []byte) Page {
	var asList []map[string]interface{}
	if err := json.Unmarshal(body, &asList); err == nil {
		return Page{Records: asList}
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(body, &asObject); err != nil {
		return Page{}
	}

	page := Page{}
	if data, ok := asObject["data"].([]interface{}); ok {
		for _, entry := range data {
			if record, ok := entry.(map[string]interface{}); ok {
				page.Records = append(page.Records, record)
			}
		}
	}
	for _, key := range cursorKeys {
		if token, ok := asObject[key].(string); ok && token != "" {
			page.NextCursor = token
			break
		}
	}
	if idx, ok := asObject["page"].(float64); ok {
		page.PageIndex = int(idx)
		page.HasPageIndex = true
	}
	return page
}
