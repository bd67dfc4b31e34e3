package codec

import (
	"bytes"
	"testing"
)

func TestMarshal_SortsMapKeys(t *testing.T) {
	a, err := Marshal(map[string]int{"zeta": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := Marshal(map[string]int{"mid": 3, "alpha": 2, "zeta": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding not deterministic: %x vs %x", a, b)
	}
}

func TestUnmarshal_AnyUsesStringKeyedMaps(t *testing.T) {
	raw, err := Marshal(map[string]any{"skills": map[string]int{"strength": 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	if err := Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("top level: got %T", v)
	}
	if _, ok := m["skills"].(map[string]any); !ok {
		t.Fatalf("nested: got %T", m["skills"])
	}
}

func TestUnmarshal_RejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	raw := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	var v map[string]int
	if err := Unmarshal(raw, &v); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
