package model

import (
	"encoding/json"
	"testing"
)

func TestJSONBValueAndScan(t *testing.T) {
	original := JSONB{"invoice_prefix": "TL", "net_days": 30}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("expected []byte value, got %T", value)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal value error: %v", err)
	}

	if decoded["invoice_prefix"] != "TL" {
		t.Fatalf("expected invoice_prefix TL, got %v", decoded["invoice_prefix"])
	}

	var scanned JSONB
	if err := scanned.Scan(data); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if scanned["invoice_prefix"] != "TL" {
		t.Fatalf("expected scanned invoice_prefix TL, got %v", scanned["invoice_prefix"])
	}
}

func TestStringListRoundTrip(t *testing.T) {
	original := StringList{"discovery report", "mvp delivery"}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var scanned StringList
	if err := scanned.Scan(value.([]byte)); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if len(scanned) != 2 || scanned[0] != "discovery report" {
		t.Fatalf("unexpected scanned list: %v", scanned)
	}
}
