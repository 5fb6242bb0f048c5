package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldPathTraversal(t *testing.T) {
	record := Record{
		"id": "evt-1",
		"agent": map[string]interface{}{
			"name": "db-server-01",
			"os": map[string]interface{}{
				"name": "Ubuntu 20.04",
			},
		},
		"rule": map[string]interface{}{
			"level": float64(12),
		},
	}

	tests := []struct {
		name string
		path string
		want interface{}
	}{
		{name: "Top-level field", path: "id", want: "evt-1"},
		{name: "Nested field", path: "agent.name", want: "db-server-01"},
		{name: "Doubly nested field", path: "agent.os.name", want: "Ubuntu 20.04"},
		{name: "Numeric leaf", path: "rule.level", want: float64(12)},
		{name: "Missing leaf", path: "agent.ip", want: nil},
		{name: "Missing intermediate", path: "syscheck.path", want: nil},
		{name: "Traversal through scalar", path: "id.sub", want: nil},
		{name: "Empty path", path: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, record.FieldPath(tt.path))
		})
	}
}

func TestCoerceString(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{name: "Nil is empty", value: nil, want: ""},
		{name: "String passthrough", value: "srv01", want: "srv01"},
		{name: "Integral float has no decimals", value: float64(7), want: "7"},
		{name: "Fractional float", value: 0.75, want: "0.75"},
		{name: "Int", value: 42, want: "42"},
		{name: "Bool", value: true, want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceString(tt.value))
		})
	}
}

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		want   float64
		wantOK bool
	}{
		{name: "Float passthrough", value: float64(7.5), want: 7.5, wantOK: true},
		{name: "Numeric string", value: "12", want: 12, wantOK: true},
		{name: "Padded numeric string", value: " 3.5 ", want: 3.5, wantOK: true},
		{name: "Non-numeric string coerces to zero", value: "abc", want: 0, wantOK: false},
		{name: "Nil coerces to zero", value: nil, want: 0, wantOK: false},
		{name: "Int", value: 9, want: 9, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoerceFloat(tt.value)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCoerceTime(t *testing.T) {
	t.Run("RFC3339 string", func(t *testing.T) {
		got, ok := CoerceTime("2024-06-01T10:30:00Z")
		assert.True(t, ok)
		assert.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), got)
	})

	t.Run("Indexer format with millis and offset", func(t *testing.T) {
		_, ok := CoerceTime("2024-06-01T10:30:00.123+0000")
		assert.True(t, ok)
	})

	t.Run("Epoch milliseconds", func(t *testing.T) {
		got, ok := CoerceTime(float64(1717237800000))
		assert.True(t, ok)
		assert.Equal(t, int64(1717237800), got.Unix())
	})

	t.Run("Garbage does not parse", func(t *testing.T) {
		_, ok := CoerceTime("not a time")
		assert.False(t, ok)
	})
}
