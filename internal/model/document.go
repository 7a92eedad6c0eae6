package model

import (
	"fmt"
	"time"
)

// OpType selects the bulk operation used when writing a document.
type OpType string

const (
	// OpCreate writes the document only when no document with the same
	// identity exists. Replays of immutable data become no-ops instead of
	// overwriting a previously stored version.
	OpCreate OpType = "create"
	// OpIndex writes the document unconditionally, replacing any previous
	// version. Used for derived, recomputable data.
	OpIndex OpType = "index"
)

// Document is one normalized record addressed for the store: a bulk
// operation, a target index, a deterministic identity and the payload.
type Document struct {
	Op     OpType
	Index  string
	ID     string
	Source map[string]interface{}
}

// DocumentError describes a single failed document within a bulk write.
type DocumentError struct {
	ID     string
	Index  string
	Status int
	Reason string
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %s (%s): status %d: %s", e.ID, e.Index, e.Status, e.Reason)
}

// BulkResult summarises a bulk write. Partial failures are reported, not
// raised: callers treat Failed as observability data and rely on idempotent
// replays for recovery.
type BulkResult struct {
	Succeeded int
	Failed    []DocumentError
}

// Index names in the store. Trades are routed into daily indices derived
// from the trade timestamp; all other entity types live in a single index.
const (
	IndexMarkets       = "markets_v1"
	IndexCandles       = "candles_v1"
	IndexOrderbook     = "orderbook_snapshots_v1"
	TradesIndexPrefix  = "trades_v1-"
	TradesIndexPattern = "trades_v1-*"
)

// TradesIndexFor returns the daily trades index for the given instant.
func TradesIndexFor(ts time.Time) string {
	return TradesIndexPrefix + ts.UTC().Format("2006.01.02")
}

// Stream keys used for checkpointing and worker identification. Candle
// checkpoints are further qualified per interval.
const (
	StreamMarkets   = "markets"
	StreamTrades    = "trades"
	StreamCandles   = "candles"
	StreamOrderbook = "orderbook"
)
