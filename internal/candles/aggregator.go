// Package candles derives OHLCV candles from stored trades. The aggregator
// reads trades back from the store rather than from upstream, so its
// progress is tracked per interval, independently of the trade stream's own
// checkpoint.
package candles

import (
	"context"
	"fmt"
	"time"

	"polyflow/config"
	"polyflow/internal/model"
	"polyflow/internal/store"
	"polyflow/logger"
)

// TradeSearcher is the read side of the store used by the aggregator.
type TradeSearcher interface {
	SearchTrades(ctx context.Context, from, to time.Time, limit int) ([]store.Hit, error)
}

// Sink is the write side of the store.
type Sink interface {
	BulkWrite(ctx context.Context, docs []model.Document) (model.BulkResult, error)
}

// Checkpoints tracks per-interval progress.
type Checkpoints interface {
	Load(stream string) (time.Time, bool)
	Save(stream string, position time.Time) error
}

// Aggregator recomputes candles for every configured interval each cycle.
type Aggregator struct {
	cfg         config.CandlesStreamConfig
	search      TradeSearcher
	sink        Sink
	checkpoints Checkpoints
	log         *logger.Log
	now         func() time.Time
}

func NewAggregator(cfg config.CandlesStreamConfig, search TradeSearcher, sink Sink, checkpoints Checkpoints) *Aggregator {
	return &Aggregator{
		cfg:         cfg,
		search:      search,
		sink:        sink,
		checkpoints: checkpoints,
		log:         logger.GetLogger(),
		now:         time.Now,
	}
}

// RunCycle catches every configured interval up to the newest closed bucket.
// A failing interval is logged and skipped; it does not block the others and
// is retried from its unadvanced checkpoint on the next cycle.
func (a *Aggregator) RunCycle(ctx context.Context) error {
	for _, label := range a.cfg.Intervals {
		width, err := ParseInterval(label)
		if err != nil {
			a.log.WithComponent("candle_aggregator").WithError(err).Warn("skipping misconfigured interval")
			continue
		}
		if err := a.catchUp(ctx, label, width); err != nil {
			a.log.WithComponent("candle_aggregator").WithError(err).WithFields(logger.Fields{
				"interval": label,
			}).Error("interval catch-up aborted; will resume next cycle")
		}
	}
	return nil
}

func (a *Aggregator) catchUp(ctx context.Context, label string, width time.Duration) error {
	streamKey := checkpointStream(label)
	now := a.now().UTC()

	start, ok := a.checkpoints.Load(streamKey)
	if !ok {
		start = now.Add(-a.cfg.Lookback)
	}

	// A bucket only closes once it is a full width plus the grace period in
	// the past; trades for the open bucket may still arrive upstream.
	closed := now.Add(-width - a.cfg.Grace)

	for _, bucketStart := range Buckets(start, closed, width) {
		if err := ctx.Err(); err != nil {
			return err
		}
		bucketEnd := bucketStart.Add(width)

		hits, err := a.search.SearchTrades(ctx, bucketStart, bucketEnd, a.cfg.FetchLimit)
		if err != nil {
			return fmt.Errorf("fetch trades for bucket %s: %w", bucketStart.Format(time.RFC3339), err)
		}

		docs := candleDocuments(Compute(hits, label, bucketStart))
		result, err := a.sink.BulkWrite(ctx, docs)
		if err != nil {
			return fmt.Errorf("write candles for bucket %s: %w", bucketStart.Format(time.RFC3339), err)
		}
		if len(result.Failed) > 0 {
			a.log.WithComponent("candle_aggregator").WithFields(logger.Fields{
				"interval":  label,
				"bucket":    bucketStart.Format(time.RFC3339),
				"succeeded": result.Succeeded,
				"failed":    len(result.Failed),
			}).Warn("some candles failed to write; bucket will be recomputed when reprocessed")
		}

		if err := a.checkpoints.Save(streamKey, bucketEnd); err != nil {
			// The unadvanced checkpoint only causes an idempotent recompute
			// of this bucket next cycle.
			a.log.WithComponent("candle_aggregator").WithError(err).WithFields(logger.Fields{
				"interval": label,
			}).Warn("failed to save checkpoint")
		}
	}
	return nil
}

func checkpointStream(label string) string {
	return model.StreamCandles + "_" + label
}

// candleDocuments addresses candles for the store. Candles are derived and
// recomputable, so they use overwrite semantics: reprocessing a bucket fully
// replaces the previous candle.
func candleDocuments(list []model.Candle) []model.Document {
	docs := make([]model.Document, 0, len(list))
	for _, c := range list {
		docs = append(docs, model.Document{
			Op:    model.OpIndex,
			Index: model.IndexCandles,
			ID:    c.ID(),
			Source: map[string]interface{}{
				"market_id": c.MarketID,
				"interval":  c.Interval,
				"open_time": c.OpenTime,
				"open":      c.Open,
				"high":      c.High,
				"low":       c.Low,
				"close":     c.Close,
				"volume":    c.Volume,
			},
		})
	}
	return docs
}
