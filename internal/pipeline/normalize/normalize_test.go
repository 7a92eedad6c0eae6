package normalize

import (
	"testing"

	"polyflow/internal/model"
)

func TestMarketAliasesAndStatus(t *testing.T) {
	doc, ok := Market(map[string]interface{}{
		"condition_id": "0xabc",
		"question":     "Will it rain tomorrow?",
		"status":       "ACTIVE",
		"createdAt":    "2024-01-01T00:00:00Z",
	})
	if !ok {
		t.Fatal("market dropped")
	}
	if doc[model.FieldMarketID] != "0xabc" {
		t.Errorf("condition id not aliased to market id: %v", doc[model.FieldMarketID])
	}
	if doc["title"] != "Will it rain tomorrow?" {
		t.Errorf("question not mapped to title: %v", doc["title"])
	}
	if doc["status"] != "active" {
		t.Errorf("status not lowercased: %v", doc["status"])
	}
	if doc["created_at"] != "2024-01-01T00:00:00Z" {
		t.Errorf("created_at not normalized: %v", doc["created_at"])
	}
}

func TestMarketWithoutIDFallsBackToHash(t *testing.T) {
	doc, ok := Market(map[string]interface{}{
		"title":      "Some market",
		"created_at": float64(1704067200),
	})
	if !ok {
		t.Fatal("market dropped")
	}
	id, _ := doc[model.FieldMarketID].(string)
	if id == "" {
		t.Fatal("no identity derived")
	}

	again, _ := Market(map[string]interface{}{
		"title":      "Some market",
		"created_at": "2024-01-01T00:00:00Z",
	})
	if again[model.FieldMarketID] != id {
		t.Errorf("hash identity not stable across timestamp encodings")
	}
}

func TestMarketWithoutKeyIsDropped(t *testing.T) {
	if _, ok := Market(map[string]interface{}{"category": "politics"}); ok {
		t.Fatal("expected drop for market without id or title")
	}
}

func TestTradeNormalization(t *testing.T) {
	doc, ok := Trade(map[string]interface{}{
		"market":    "m1",
		"timestamp": float64(1704067200000),
		"price":     "0.42",
		"size":      float64(10),
		"side":      "BUY",
		"asset_id":  "tok1",
		"txHash":    "0xdead",
	})
	if !ok {
		t.Fatal("trade dropped")
	}
	if doc[model.FieldMarketID] != "m1" {
		t.Errorf("market alias not resolved: %v", doc[model.FieldMarketID])
	}
	if doc[model.FieldTimestamp] != "2024-01-01T00:00:00Z" {
		t.Errorf("timestamp not normalized: %v", doc[model.FieldTimestamp])
	}
	if doc[model.FieldPrice] != 0.42 {
		t.Errorf("price not coerced: %v", doc[model.FieldPrice])
	}
	if doc[model.FieldSide] != "buy" {
		t.Errorf("side not lowercased: %v", doc[model.FieldSide])
	}
	if doc[model.FieldTxHash] != "0xdead" {
		t.Errorf("tx hash alias not resolved: %v", doc[model.FieldTxHash])
	}
}

func TestTradeBadNumericFieldLeftAbsent(t *testing.T) {
	doc, ok := Trade(map[string]interface{}{
		"market_id": "m1",
		"price":     "not-a-number",
		"size":      "5",
	})
	if !ok {
		t.Fatal("trade dropped")
	}
	if _, present := doc[model.FieldPrice]; present {
		t.Error("unparseable price should be absent")
	}
	if doc[model.FieldSize] != 5.0 {
		t.Errorf("size not coerced: %v", doc[model.FieldSize])
	}
}

func TestTradeWithoutMarketLinkageIsDropped(t *testing.T) {
	if _, ok := Trade(map[string]interface{}{"price": 0.5, "size": 1.0}); ok {
		t.Fatal("expected drop for trade without market linkage")
	}
}

func TestLevelsCappedAndMixedShapes(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"price": "0.51", "size": 100.0},
		[]interface{}{"0.50", "250"},
		map[string]interface{}{"price": "bad"},
		[]interface{}{0.49, 10.0},
	}
	levels := Levels(raw, 2)
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if levels[0].Price != 0.51 || levels[0].Size != 100 {
		t.Errorf("unexpected first level: %+v", levels[0])
	}
	if levels[1].Price != 0.50 || levels[1].Size != 250 {
		t.Errorf("unexpected second level: %+v", levels[1])
	}
}
