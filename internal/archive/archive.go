// Package archive mirrors polled order book snapshots into S3 as parquet
// files, one object per cycle, partitioned by date. The archive is cold
// storage for replay and backtesting; the store remains the source of truth.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"polyflow/config"
	"polyflow/internal/model"
	"polyflow/internal/pipeline/normalize"
	"polyflow/logger"
)

// row is the flattened parquet schema: one row per price level.
type row struct {
	MarketID  string  `parquet:"name=market_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Size      float64 `parquet:"name=size, type=DOUBLE"`
	Level     int32   `parquet:"name=level, type=INT32"`
}

// Writer uploads snapshot batches to a single S3 bucket.
type Writer struct {
	cfg    config.S3Config
	client *s3.Client
	log    *logger.Log
}

// NewWriter builds the S3 client. Static credentials from the configuration
// take precedence; otherwise the default AWS credential chain applies.
func NewWriter(ctx context.Context, cfg config.S3Config) (*Writer, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log := logger.GetLogger()
	log.WithComponent("archive").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("snapshot archive initialized")

	return &Writer{cfg: cfg, client: client, log: log}, nil
}

// Archive flattens one cycle's snapshots into a parquet object and uploads
// it. An empty cycle is a no-op.
func (w *Writer) Archive(ctx context.Context, snapshots []model.BookSnapshot) error {
	rows := flatten(snapshots)
	if len(rows) == 0 {
		return nil
	}

	data, err := buildParquet(rows)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}

	key := w.objectKey(time.Now().UTC())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  "snappy",
		},
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.log.WithComponent("archive").WithFields(logger.Fields{
		"s3_key":    key,
		"rows":      len(rows),
		"snapshots": len(snapshots),
		"file_size": len(data),
	}).Info("snapshot batch archived")
	return nil
}

// objectKey partitions archives by UTC date. The uuid suffix keeps cycles
// within the same second from colliding.
func (w *Writer) objectKey(ts time.Time) string {
	name := fmt.Sprintf("orderbook_%s_%s.parquet", ts.Format("20060102150405"), uuid.New().String())
	return path.Join(w.cfg.Prefix, "dt="+ts.Format("2006-01-02"), name)
}

// flatten turns snapshots into one parquet row per price level. Levels are
// numbered from the top of the book, starting at 1.
func flatten(snapshots []model.BookSnapshot) []row {
	var rows []row
	for _, s := range snapshots {
		ts, ok := normalize.ParseTimestamp(s.Timestamp)
		if !ok {
			continue
		}
		for i, level := range s.Levels {
			rows = append(rows, row{
				MarketID:  s.MarketID,
				Side:      s.Side,
				Timestamp: ts.UnixMilli(),
				Price:     level.Price,
				Size:      level.Size,
				Level:     int32(i + 1),
			})
		}
	}
	return rows
}

func buildParquet(rows []row) ([]byte, error) {
	fw := newMemoryFile()

	pw, err := writer.NewParquetWriter(fw, new(row), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}
