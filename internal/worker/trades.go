package worker

import (
	"context"
	"fmt"
	"time"

	"polyflow/config"
	"polyflow/internal/model"
	"polyflow/internal/pipeline/fetch"
	"polyflow/internal/pipeline/normalize"
	"polyflow/logger"
)

// Trades ingests the trade stream in checkpointed windows. Each cycle fetches
// [checkpoint, now), writes the trades under content-derived identities and
// advances the checkpoint only after a successful write. Trades are immutable,
// so replayed windows collapse into no-op conflicts at the store.
type Trades struct {
	cfg         config.TradesStreamConfig
	url         string
	fetcher     Fetcher
	sink        Sink
	checkpoints Checkpoints
	log         *logger.Log
	now         func() time.Time
}

func NewTrades(cfg config.TradesStreamConfig, url string, fetcher Fetcher, sink Sink, checkpoints Checkpoints) *Trades {
	return &Trades{
		cfg:         cfg,
		url:         url,
		fetcher:     fetcher,
		sink:        sink,
		checkpoints: checkpoints,
		log:         logger.GetLogger(),
		now:         time.Now,
	}
}

func (w *Trades) RunCycle(ctx context.Context) error {
	end := w.now().UTC()
	start, ok := w.checkpoints.Load(model.StreamTrades)
	if !ok {
		start = end.Add(-w.cfg.Lookback)
	}
	if !start.Before(end) {
		return nil
	}

	records, err := w.fetcher.Window(ctx, fetch.Request{
		URL:      w.url,
		Start:    start,
		End:      end,
		PageSize: w.cfg.PageSize,
		MaxPages: w.cfg.MaxPages,
	})
	if err != nil {
		// Checkpoint stays put; the next cycle retries the same window.
		return fmt.Errorf("fetch trades: %w", err)
	}

	docs, dropped := tradeDocuments(records, end)
	if dropped > 0 {
		w.log.WithComponent("trades").WithFields(logger.Fields{
			"dropped": dropped,
		}).Warn("dropped malformed trade records")
	}

	written := 0
	failed := 0
	if len(docs) > 0 {
		result, err := w.sink.BulkWrite(ctx, docs)
		if err != nil {
			return fmt.Errorf("write trades: %w", err)
		}
		written = result.Succeeded
		failed = len(result.Failed)
	}

	if err := w.checkpoints.Save(model.StreamTrades, end); err != nil {
		w.log.WithComponent("trades").WithError(err).Warn("failed to persist checkpoint")
	}

	w.log.LogMetric("trades", "documents_written", float64(written), logger.Fields{
		"fetched":      len(records),
		"failed":       failed,
		"window_start": normalize.FormatTimestamp(start),
		"window_end":   normalize.FormatTimestamp(end),
	})
	return nil
}

// tradeDocuments normalizes raw trade records and addresses them for the
// store. The daily index is derived from the trade's own timestamp; records
// without a parseable timestamp are routed by the window end instead.
func tradeDocuments(records []map[string]interface{}, fallback time.Time) ([]model.Document, int) {
	docs := make([]model.Document, 0, len(records))
	dropped := 0
	for _, raw := range records {
		doc, ok := normalize.Trade(raw)
		if !ok {
			dropped++
			continue
		}
		indexTS := fallback
		if v, present := doc[model.FieldTimestamp]; present {
			if ts, ok := normalize.ParseTimestamp(v); ok {
				indexTS = ts
			}
		}
		docs = append(docs, model.Document{
			Op:     model.OpCreate,
			Index:  model.TradesIndexFor(indexTS),
			ID:     normalize.TradeID(doc),
			Source: doc,
		})
	}
	return docs, dropped
}
