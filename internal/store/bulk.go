package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"polyflow/internal/model"
	"polyflow/logger"
)

// BulkWrite writes the batch in one bulk request. Failures are partial: each
// document succeeds or fails on its own, and the result carries the counts
// and reasons. Version conflicts on create actions are replays of immutable
// documents and count as successes.
func (c *Client) BulkWrite(ctx context.Context, docs []model.Document) (model.BulkResult, error) {
	if len(docs) == 0 {
		return model.BulkResult{}, nil
	}

	body, err := buildBulkBody(docs)
	if err != nil {
		return model.BulkResult{}, err
	}

	res, err := c.os.Bulk(bytes.NewReader(body), c.os.Bulk.WithContext(ctx))
	if err != nil {
		return model.BulkResult{}, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return model.BulkResult{}, fmt.Errorf("bulk request rejected: %s", res.Status())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return model.BulkResult{}, fmt.Errorf("read bulk response: %w", err)
	}

	result, err := parseBulkResponse(raw)
	if err != nil {
		return model.BulkResult{}, err
	}

	if len(result.Failed) > 0 {
		c.log.WithComponent("bulk_sink").WithFields(logger.Fields{
			"succeeded": result.Succeeded,
			"failed":    len(result.Failed),
			"first":     result.Failed[0].Reason,
		}).Warn("bulk write partially failed")
	}
	return result, nil
}

// buildBulkBody renders the NDJSON bulk payload: one action line and one
// source line per document.
func buildBulkBody(docs []model.Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]map[string]string{
			string(doc.Op): {
				"_index": doc.Index,
				"_id":    doc.ID,
			},
		}
		meta, err := json.Marshal(action)
		if err != nil {
			return nil, fmt.Errorf("marshal bulk action: %w", err)
		}
		source, err := json.Marshal(doc.Source)
		if err != nil {
			return nil, fmt.Errorf("marshal document %s: %w", doc.ID, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type bulkResponseItem struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type bulkResponse struct {
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items"`
}

func parseBulkResponse(raw []byte) (model.BulkResult, error) {
	var resp bulkResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.BulkResult{}, fmt.Errorf("decode bulk response: %w", err)
	}

	result := model.BulkResult{}
	for _, item := range resp.Items {
		for op, status := range item {
			switch {
			case status.Status >= 200 && status.Status < 300:
				result.Succeeded++
			case op == string(model.OpCreate) && status.Status == 409:
				// Document already exists: an idempotent replay, not a failure.
				result.Succeeded++
			default:
				reason := "unknown"
				if status.Error != nil {
					reason = status.Error.Reason
				}
				result.Failed = append(result.Failed, model.DocumentError{
					ID:     status.ID,
					Index:  status.Index,
					Status: status.Status,
					Reason: reason,
				})
			}
		}
	}
	return result, nil
}
