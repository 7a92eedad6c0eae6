package worker

import (
	"context"
	"net/url"
	"time"

	"polyflow/internal/model"
	"polyflow/internal/pipeline/fetch"
)

// Fetcher is the upstream access the stream workers need: windowed paginated
// reads for record streams and single-object reads for order book polling.
type Fetcher interface {
	Window(ctx context.Context, req fetch.Request) ([]map[string]interface{}, error)
	Object(ctx context.Context, rawURL string, query url.Values) (map[string]interface{}, error)
}

// Sink receives addressed documents. Partial failures are reported in the
// result, not as an error.
type Sink interface {
	BulkWrite(ctx context.Context, docs []model.Document) (model.BulkResult, error)
}

// Checkpoints persists each stream's resume position.
type Checkpoints interface {
	Load(stream string) (time.Time, bool)
	Save(stream string, position time.Time) error
}
