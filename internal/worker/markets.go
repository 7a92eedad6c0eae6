package worker

import (
	"context"
	"fmt"

	"polyflow/config"
	"polyflow/internal/model"
	"polyflow/internal/pipeline/fetch"
	"polyflow/internal/pipeline/normalize"
	"polyflow/logger"
)

// Markets polls the full market catalog every cycle and upserts it. Markets
// are mutable upstream (status and category change over a market's life), so
// every cycle overwrites the stored version under the same identity.
type Markets struct {
	cfg     config.MarketsStreamConfig
	url     string
	fetcher Fetcher
	sink    Sink
	log     *logger.Log
}

func NewMarkets(cfg config.MarketsStreamConfig, url string, fetcher Fetcher, sink Sink) *Markets {
	return &Markets{
		cfg:     cfg,
		url:     url,
		fetcher: fetcher,
		sink:    sink,
		log:     logger.GetLogger(),
	}
}

func (w *Markets) RunCycle(ctx context.Context) error {
	records, err := w.fetcher.Window(ctx, fetch.Request{
		URL:      w.url,
		PageSize: w.cfg.PageSize,
		MaxPages: w.cfg.MaxPages,
	})
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	docs := make([]model.Document, 0, len(records))
	dropped := 0
	for _, raw := range records {
		doc, ok := normalize.Market(raw)
		if !ok {
			dropped++
			continue
		}
		id, _ := doc[model.FieldMarketID].(string)
		if id == "" {
			dropped++
			continue
		}
		docs = append(docs, model.Document{
			Op:     model.OpIndex,
			Index:  model.IndexMarkets,
			ID:     id,
			Source: doc,
		})
	}

	if dropped > 0 {
		w.log.WithComponent("markets").WithFields(logger.Fields{
			"dropped": dropped,
		}).Warn("dropped unidentifiable market records")
	}
	if len(docs) == 0 {
		return nil
	}

	result, err := w.sink.BulkWrite(ctx, docs)
	if err != nil {
		return fmt.Errorf("write markets: %w", err)
	}

	w.log.LogMetric("markets", "documents_written", float64(result.Succeeded), logger.Fields{
		"fetched": len(records),
		"failed":  len(result.Failed),
	})
	return nil
}
