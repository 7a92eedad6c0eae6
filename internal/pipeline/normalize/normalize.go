// Package normalize maps heterogeneous upstream payloads into the canonical
// document schema and assigns deterministic, content-derived identities.
// Normalization is best effort: ill-formed optional fields are left absent,
// never raised, and only records without a usable primary key are dropped.
package normalize

import (
	"strconv"
	"strings"

	"polyflow/internal/model"
)

// Float coerces the JSON encodings used for numeric fields (numbers and
// numeric strings) into a float64.
func Float(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int64:
		return float64(f), true
	case int:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func str(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// firstString returns the first non-empty string value among the given keys.
func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s := str(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstValue(raw map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Market normalizes one raw upstream market object. The second return value
// is false when the record lacks any usable primary key and must be dropped.
func Market(raw map[string]interface{}) (map[string]interface{}, bool) {
	doc := map[string]interface{}{}

	title := firstString(raw, "title", "question", "name")
	if title != "" {
		doc["title"] = title
	}
	if category := firstString(raw, "category"); category != "" {
		doc["category"] = category
	}
	if status := firstString(raw, "status", "state"); status != "" {
		doc["status"] = strings.ToLower(status)
	}

	var createdISO string
	if v, ok := firstValue(raw, "created_at", "createdAt", "creation_time", "createdTime"); ok {
		if ts, ok := ParseTimestamp(v); ok {
			createdISO = FormatTimestamp(ts)
			doc["created_at"] = createdISO
		}
	}

	id := firstString(raw, "id", "market_id", "marketId", "condition_id", "conditionId")
	if id == "" && title == "" {
		// Nothing to derive an identity from.
		return nil, false
	}
	doc[model.FieldMarketID] = MarketID(id, title, createdISO)

	return doc, true
}

// Trade normalizes one raw upstream trade object. Records without a
// resolvable market linkage are dropped.
func Trade(raw map[string]interface{}) (map[string]interface{}, bool) {
	marketID := firstString(raw, "market_id", "marketId", "market", "condition_id", "conditionId")
	if marketID == "" {
		return nil, false
	}

	doc := map[string]interface{}{
		model.FieldMarketID: marketID,
	}

	if v, ok := firstValue(raw, "ts", "timestamp", "time", "match_time"); ok {
		if ts, ok := ParseTimestamp(v); ok {
			doc[model.FieldTimestamp] = FormatTimestamp(ts)
		}
	}
	if v, ok := firstValue(raw, "price"); ok {
		if price, ok := Float(v); ok {
			doc[model.FieldPrice] = price
		}
	}
	if v, ok := firstValue(raw, "size", "amount", "quantity"); ok {
		if size, ok := Float(v); ok {
			doc[model.FieldSize] = size
		}
	}
	if side := firstString(raw, "side"); side != "" {
		doc[model.FieldSide] = strings.ToLower(side)
	}
	if asset := firstString(raw, "asset", "asset_id", "assetId", "token_id", "tokenId"); asset != "" {
		doc[model.FieldAsset] = asset
	}
	if tx := firstString(raw, "transaction_hash", "transactionHash", "tx_hash", "txHash"); tx != "" {
		doc[model.FieldTxHash] = tx
	}

	return doc, true
}

// Levels normalizes a raw order book level list, capping it to depth.
// Entries are either {"price": ..., "size": ...} objects or [price, size]
// pairs; malformed entries are skipped.
func Levels(raw []interface{}, depth int) []model.PriceLevel {
	levels := make([]model.PriceLevel, 0, depth)
	for _, entry := range raw {
		if len(levels) >= depth {
			break
		}
		switch e := entry.(type) {
		case map[string]interface{}:
			price, pok := Float(e["price"])
			size, sok := Float(e["size"])
			if pok && sok {
				levels = append(levels, model.PriceLevel{Price: price, Size: size})
			}
		case []interface{}:
			if len(e) < 2 {
				continue
			}
			price, pok := Float(e[0])
			size, sok := Float(e[1])
			if pok && sok {
				levels = append(levels, model.PriceLevel{Price: price, Size: size})
			}
		}
	}
	return levels
}
