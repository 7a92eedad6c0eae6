package worker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"polyflow/config"
	"polyflow/internal/model"
	"polyflow/internal/pipeline/normalize"
	"polyflow/logger"
)

// Archiver receives each cycle's snapshots for cold storage. Archiving is
// best effort; failures never block the store write.
type Archiver interface {
	Archive(ctx context.Context, snapshots []model.BookSnapshot) error
}

var bookSides = [2]string{"bid", "ask"}

// Orderbook polls both book sides for a fixed set of markets each cycle and
// appends depth-capped snapshots to the store. A market that fails to respond
// is skipped for the cycle; the remaining markets still get their snapshots.
type Orderbook struct {
	cfg         config.OrderbookStreamConfig
	url         string
	fetcher     Fetcher
	sink        Sink
	checkpoints Checkpoints
	archiver    Archiver
	log         *logger.Log
	now         func() time.Time
}

func NewOrderbook(cfg config.OrderbookStreamConfig, url string, fetcher Fetcher, sink Sink, checkpoints Checkpoints, archiver Archiver) *Orderbook {
	return &Orderbook{
		cfg:         cfg,
		url:         url,
		fetcher:     fetcher,
		sink:        sink,
		checkpoints: checkpoints,
		archiver:    archiver,
		log:         logger.GetLogger(),
		now:         time.Now,
	}
}

func (w *Orderbook) RunCycle(ctx context.Context) error {
	// One timestamp per cycle so a market's bid and ask land in the same
	// logical snapshot.
	polled := w.now().UTC()
	ts := normalize.FormatTimestamp(polled)

	snapshots := make([]model.BookSnapshot, 0, len(w.cfg.Markets)*len(bookSides))
	for _, market := range w.cfg.Markets {
		for _, side := range bookSides {
			if err := ctx.Err(); err != nil {
				return err
			}

			query := url.Values{}
			query.Set("market_id", market)
			query.Set("side", side)
			query.Set("depth", strconv.Itoa(w.cfg.Depth))

			object, err := w.fetcher.Object(ctx, w.url, query)
			if err != nil {
				w.log.WithComponent("orderbook").WithFields(logger.Fields{
					"market_id": market,
					"side":      side,
				}).WithError(err).Warn("order book poll failed")
				continue
			}
			if object == nil {
				continue
			}

			levelsRaw, _ := object["levels"].([]interface{})
			snapshots = append(snapshots, model.BookSnapshot{
				MarketID:  market,
				Side:      side,
				Timestamp: ts,
				Levels:    normalize.Levels(levelsRaw, w.cfg.Depth),
			})
		}
	}

	if len(snapshots) == 0 {
		return nil
	}

	result, err := w.sink.BulkWrite(ctx, snapshotDocuments(snapshots))
	if err != nil {
		return fmt.Errorf("write order book snapshots: %w", err)
	}

	if err := w.checkpoints.Save(model.StreamOrderbook, polled); err != nil {
		w.log.WithComponent("orderbook").WithError(err).Warn("failed to persist checkpoint")
	}

	if w.archiver != nil {
		if err := w.archiver.Archive(ctx, snapshots); err != nil {
			w.log.WithComponent("orderbook").WithError(err).Warn("snapshot archive failed")
		}
	}

	w.log.LogMetric("orderbook", "documents_written", float64(result.Succeeded), logger.Fields{
		"markets": len(w.cfg.Markets),
		"failed":  len(result.Failed),
	})
	return nil
}

func snapshotDocuments(snapshots []model.BookSnapshot) []model.Document {
	docs := make([]model.Document, 0, len(snapshots))
	for _, s := range snapshots {
		docs = append(docs, model.Document{
			Op:    model.OpIndex,
			Index: model.IndexOrderbook,
			ID:    s.ID(),
			Source: map[string]interface{}{
				model.FieldMarketID:  s.MarketID,
				model.FieldSide:      s.Side,
				model.FieldTimestamp: s.Timestamp,
				"levels":             s.Levels,
			},
		})
	}
	return docs
}
