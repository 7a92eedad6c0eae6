package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"polyflow/internal/model"
)

// hashID derives a stable hex identity from the given parts. The same parts
// always produce the same identity across process restarts; there is no
// dependency on wall clock or randomness.
func hashID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// MarketID returns the canonical market identity: the upstream id when
// present, else a stable hash of title and creation time.
func MarketID(upstreamID, title, createdISO string) string {
	if upstreamID != "" {
		return upstreamID
	}
	return hashID("market", title, createdISO)
}

// TradeID returns the deterministic identity for a normalized trade
// document. The transaction hash plus asset plus timestamp is preferred;
// without a transaction hash the identity falls back to a hash of the full
// normalized trade content.
func TradeID(doc map[string]interface{}) string {
	ts, _ := doc[model.FieldTimestamp].(string)
	asset, _ := doc[model.FieldAsset].(string)

	if tx, ok := doc[model.FieldTxHash].(string); ok && tx != "" {
		return hashID("trade", tx, asset, ts)
	}

	marketID, _ := doc[model.FieldMarketID].(string)
	side, _ := doc[model.FieldSide].(string)
	return hashID("trade",
		marketID,
		asset,
		side,
		floatKey(doc[model.FieldPrice]),
		floatKey(doc[model.FieldSize]),
		ts,
	)
}

func floatKey(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
