package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"polyflow/internal/model"
	"polyflow/internal/pipeline/normalize"
)

// Hit is one stored trade returned by SearchTrades: the store-assigned
// document id plus the document source.
type Hit struct {
	ID     string
	Source map[string]interface{}
}

// SearchTrades returns stored trades with timestamp in [from, to), sorted by
// timestamp then document id ascending so ties at identical timestamps break
// deterministically.
func (c *Client) SearchTrades(ctx context.Context, from, to time.Time, limit int) ([]Hit, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				model.FieldTimestamp: map[string]interface{}{
					"gte": normalize.FormatTimestamp(from),
					"lt":  normalize.FormatTimestamp(to),
				},
			},
		},
		"size": limit,
		"sort": []interface{}{
			map[string]interface{}{model.FieldTimestamp: map[string]interface{}{"order": "asc"}},
			map[string]interface{}{"_id": map[string]interface{}{"order": "asc"}},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	res, err := c.os.Search(
		c.os.Search.WithContext(ctx),
		c.os.Search.WithIndex(model.TradesIndexPattern),
		c.os.Search.WithBody(strings.NewReader(string(body))),
	)
	if err != nil {
		return nil, fmt.Errorf("search trades: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// A fresh cluster has no trade indices yet; that's an empty result,
		// not a failure.
		if res.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("search trades: %s", res.Status())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return parseSearchResponse(raw)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                 `json:"_id"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func parseSearchResponse(raw []byte) ([]Hit, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{ID: h.ID, Source: h.Source})
	}
	return hits, nil
}
