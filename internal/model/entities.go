package model

// Field names shared across the canonical document schema. Upstream payloads
// arrive with heterogeneous field names; the normalizer maps them onto these.
const (
	FieldMarketID  = "market_id"
	FieldTimestamp = "ts"
	FieldPrice     = "price"
	FieldSize      = "size"
	FieldSide      = "side"
	FieldAsset     = "asset"
	FieldTxHash    = "transaction_hash"
)

// Candle is the derived OHLCV document for one (market, interval, bucket).
type Candle struct {
	MarketID string  `json:"market_id"`
	Interval string  `json:"interval"`
	OpenTime string  `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// ID returns the candle's deterministic store identity. Reprocessing a
// bucket produces the same identity, so a recomputed candle replaces the
// previous one instead of accumulating duplicates.
func (c Candle) ID() string {
	return c.MarketID + ":" + c.Interval + ":" + c.OpenTime
}

// PriceLevel is a single price/size pair within an order book side.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is one polled order book side for a market, capped to the
// configured depth. Snapshots form an append-only time series.
type BookSnapshot struct {
	MarketID  string       `json:"market_id"`
	Side      string       `json:"side"`
	Timestamp string       `json:"ts"`
	Levels    []PriceLevel `json:"levels"`
}

// ID returns the snapshot's store identity, one document per
// market/side/timestamp triple.
func (s BookSnapshot) ID() string {
	return s.MarketID + ":" + s.Side + ":" + s.Timestamp
}
