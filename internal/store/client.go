// Package store wraps the OpenSearch cluster that holds all ingested
// documents: bulk writes for the pipeline and the range query the candle
// aggregator reads trades back through.
package store

import (
	"crypto/tls"
	"fmt"
	"net/http"

	opensearch "github.com/opensearch-project/opensearch-go/v2"

	"polyflow/config"
	"polyflow/logger"
)

// Client is the injectable store handle shared by all workers. The
// underlying OpenSearch client is safe for concurrent use.
type Client struct {
	os  *opensearch.Client
	log *logger.Log
}

// NewClient connects to the configured OpenSearch cluster.
func NewClient(cfg config.OpensearchConfig) (*Client, error) {
	transport := &http.Transport{}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    cfg.MaxRetries,
		RetryOnStatus: []int{429, 502, 503, 504},
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	return &Client{os: osClient, log: logger.GetLogger()}, nil
}
