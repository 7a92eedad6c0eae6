package worker

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"polyflow/config"
	"polyflow/internal/model"
)

var bookNow = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

func orderbookConfig(markets ...string) config.OrderbookStreamConfig {
	return config.OrderbookStreamConfig{Enabled: true, Depth: 3, Markets: markets}
}

func newTestOrderbook(cfg config.OrderbookStreamConfig, fetcher *fakeFetcher, sink *fakeSink, checkpoints *fakeCheckpoints, archiver Archiver) *Orderbook {
	w := NewOrderbook(cfg, "https://source/book", fetcher, sink, checkpoints, archiver)
	w.now = func() time.Time { return bookNow }
	return w
}

func bookObject(levels ...[]interface{}) map[string]interface{} {
	raw := make([]interface{}, 0, len(levels))
	for _, l := range levels {
		raw = append(raw, l)
	}
	return map[string]interface{}{"levels": raw}
}

func TestOrderbookCyclePollsBothSidesPerMarket(t *testing.T) {
	fetcher := &fakeFetcher{object: func(url.Values) (map[string]interface{}, error) {
		return bookObject([]interface{}{0.4, 100.0}, []interface{}{0.39, 50.0}), nil
	}}
	sink := &fakeSink{}
	checkpoints := newFakeCheckpoints()

	w := newTestOrderbook(orderbookConfig("m1", "m2"), fetcher, sink, checkpoints, nil)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(fetcher.objects) != 4 {
		t.Fatalf("issued %d polls, want 4 (2 markets x 2 sides)", len(fetcher.objects))
	}
	sides := map[string]int{}
	for _, q := range fetcher.objects {
		sides[q.Get("side")]++
		if q.Get("depth") != "3" {
			t.Errorf("poll depth = %s, want 3", q.Get("depth"))
		}
	}
	if sides["bid"] != 2 || sides["ask"] != 2 {
		t.Errorf("side distribution = %v, want 2 bids and 2 asks", sides)
	}

	docs := sink.allDocs()
	if len(docs) != 4 {
		t.Fatalf("wrote %d snapshots, want 4", len(docs))
	}
	wantTS := "2024-01-02T12:00:00Z"
	for _, doc := range docs {
		if doc.Op != model.OpIndex {
			t.Errorf("snapshot op = %s, want index", doc.Op)
		}
		if doc.Index != model.IndexOrderbook {
			t.Errorf("snapshot index = %s", doc.Index)
		}
		if got := doc.Source[model.FieldTimestamp]; got != wantTS {
			t.Errorf("snapshot ts = %v, want %s", got, wantTS)
		}
	}
	if docs[0].ID != "m1:bid:"+wantTS {
		t.Errorf("snapshot id = %s", docs[0].ID)
	}

	saved, ok := checkpoints.Load(model.StreamOrderbook)
	if !ok || !saved.Equal(bookNow) {
		t.Errorf("checkpoint = %v, want %v", saved, bookNow)
	}
}

func TestOrderbookCycleCapsDepth(t *testing.T) {
	fetcher := &fakeFetcher{object: func(url.Values) (map[string]interface{}, error) {
		return bookObject(
			[]interface{}{0.5, 1.0},
			[]interface{}{0.49, 2.0},
			[]interface{}{0.48, 3.0},
			[]interface{}{0.47, 4.0},
			[]interface{}{0.46, 5.0},
		), nil
	}}
	sink := &fakeSink{}

	w := newTestOrderbook(orderbookConfig("m1"), fetcher, sink, newFakeCheckpoints(), nil)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	for _, doc := range sink.allDocs() {
		levels, ok := doc.Source["levels"].([]model.PriceLevel)
		if !ok {
			t.Fatalf("levels have unexpected type %T", doc.Source["levels"])
		}
		if len(levels) != 3 {
			t.Errorf("snapshot holds %d levels, want depth cap 3", len(levels))
		}
	}
}

func TestOrderbookCycleIsolatesFailingMarket(t *testing.T) {
	fetcher := &fakeFetcher{object: func(q url.Values) (map[string]interface{}, error) {
		if q.Get("market_id") == "m1" {
			return nil, errors.New("HTTP error: 404 Not Found")
		}
		return bookObject([]interface{}{0.6, 10.0}), nil
	}}
	sink := &fakeSink{}

	w := newTestOrderbook(orderbookConfig("m1", "m2"), fetcher, sink, newFakeCheckpoints(), nil)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	docs := sink.allDocs()
	if len(docs) != 2 {
		t.Fatalf("wrote %d snapshots, want 2 for the healthy market", len(docs))
	}
	for _, doc := range docs {
		if got := doc.Source[model.FieldMarketID]; got != "m2" {
			t.Errorf("snapshot market = %v, want m2", got)
		}
	}
}

type recordingArchiver struct {
	mu        sync.Mutex
	snapshots []model.BookSnapshot
	err       error
}

func (a *recordingArchiver) Archive(_ context.Context, snapshots []model.BookSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, snapshots...)
	return a.err
}

func TestOrderbookCycleForwardsSnapshotsToArchiver(t *testing.T) {
	fetcher := &fakeFetcher{object: func(url.Values) (map[string]interface{}, error) {
		return bookObject([]interface{}{0.5, 1.0}), nil
	}}
	archiver := &recordingArchiver{}

	w := newTestOrderbook(orderbookConfig("m1"), fetcher, &fakeSink{}, newFakeCheckpoints(), archiver)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(archiver.snapshots) != 2 {
		t.Fatalf("archiver received %d snapshots, want 2", len(archiver.snapshots))
	}
}

func TestOrderbookCycleArchiveFailureIsNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{object: func(url.Values) (map[string]interface{}, error) {
		return bookObject([]interface{}{0.5, 1.0}), nil
	}}
	archiver := &recordingArchiver{err: errors.New("bucket unreachable")}
	sink := &fakeSink{}

	w := newTestOrderbook(orderbookConfig("m1"), fetcher, sink, newFakeCheckpoints(), archiver)
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sink.allDocs()) != 2 {
		t.Fatal("snapshots not written despite archive failure")
	}
}
