package candles

import (
	"sort"
	"time"

	"polyflow/internal/model"
	"polyflow/internal/pipeline/normalize"
	"polyflow/internal/store"
)

// Compute derives one candle per market from the trades of a single bucket.
// Hits must already be ordered by timestamp then document id ascending, the
// order SearchTrades returns; that ordering decides open and close when
// several trades share a timestamp.
func Compute(hits []store.Hit, interval string, bucketStart time.Time) []model.Candle {
	byMarket := map[string][]store.Hit{}
	for _, h := range hits {
		marketID, _ := h.Source[model.FieldMarketID].(string)
		if marketID == "" {
			continue
		}
		byMarket[marketID] = append(byMarket[marketID], h)
	}

	markets := make([]string, 0, len(byMarket))
	for m := range byMarket {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	openTime := normalize.FormatTimestamp(bucketStart)
	out := make([]model.Candle, 0, len(markets))
	for _, marketID := range markets {
		rows := byMarket[marketID]

		price := func(h store.Hit) float64 {
			p, _ := normalize.Float(h.Source[model.FieldPrice])
			return p
		}
		size := func(h store.Hit) float64 {
			s, _ := normalize.Float(h.Source[model.FieldSize])
			return s
		}

		candle := model.Candle{
			MarketID: marketID,
			Interval: interval,
			OpenTime: openTime,
			Open:     price(rows[0]),
			Close:    price(rows[len(rows)-1]),
			High:     price(rows[0]),
			Low:      price(rows[0]),
		}
		for _, row := range rows {
			p := price(row)
			if p > candle.High {
				candle.High = p
			}
			if p < candle.Low {
				candle.Low = p
			}
			candle.Volume += size(row)
		}
		out = append(out, candle)
	}
	return out
}
