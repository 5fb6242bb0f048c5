package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicateStringOperators(t *testing.T) {
	record := Record{
		"id": "a1",
		"agent": map[string]interface{}{
			"name": "Web-Server-01",
			"ip":   "192.168.1.20",
		},
		"rule": map[string]interface{}{
			"description": "SSH authentication failure",
			"level":       float64(7),
		},
	}

	tests := []struct {
		name      string
		predicate FilterPredicate
		want      bool
	}{
		{
			name:      "Equals is case-insensitive",
			predicate: FilterPredicate{Field: "agent.name", Operator: OpEquals, Value: "web-server-01"},
			want:      true,
		},
		{
			name:      "Equals mismatch",
			predicate: FilterPredicate{Field: "agent.name", Operator: OpEquals, Value: "web-server-02"},
			want:      false,
		},
		{
			name:      "Contains matches substring",
			predicate: FilterPredicate{Field: "rule.description", Operator: OpContains, Value: "AUTH"},
			want:      true,
		},
		{
			name:      "StartsWith",
			predicate: FilterPredicate{Field: "agent.ip", Operator: OpStartsWith, Value: "192.168."},
			want:      true,
		},
		{
			name:      "EndsWith",
			predicate: FilterPredicate{Field: "rule.description", Operator: OpEndsWith, Value: "failure"},
			want:      true,
		},
		{
			name:      "Missing path resolves to empty string",
			predicate: FilterPredicate{Field: "agent.os.name", Operator: OpEquals, Value: ""},
			want:      true,
		},
		{
			name:      "Numeric field coerces to string for equals",
			predicate: FilterPredicate{Field: "rule.level", Operator: OpEquals, Value: "7"},
			want:      true,
		},
		{
			name:      "Unknown operator never matches",
			predicate: FilterPredicate{Field: "agent.name", Operator: "regex", Value: ".*"},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.predicate.Matches(record, NumericLenient))
		})
	}
}

func TestPredicateNumericOperators(t *testing.T) {
	record := Record{
		"rule": map[string]interface{}{
			"level": float64(10),
		},
		"note": "not a number",
	}

	tests := []struct {
		name       string
		predicate  FilterPredicate
		policy     NumericPolicy
		want       bool
	}{
		{
			name:      "GreaterThan true",
			predicate: FilterPredicate{Field: "rule.level", Operator: OpGreaterThan, Value: "7"},
			policy:    NumericLenient,
			want:      true,
		},
		{
			name:      "GreaterThan false on equal",
			predicate: FilterPredicate{Field: "rule.level", Operator: OpGreaterThan, Value: "10"},
			policy:    NumericLenient,
			want:      false,
		},
		{
			name:      "LessThan",
			predicate: FilterPredicate{Field: "rule.level", Operator: OpLessThan, Value: "12"},
			policy:    NumericLenient,
			want:      true,
		},
		{
			// The historical coercion: a non-numeric comparison value
			// becomes 0, so any positive level matches.
			name:      "Lenient non-numeric value coerces to zero",
			predicate: FilterPredicate{Field: "rule.level", Operator: OpGreaterThan, Value: "abc"},
			policy:    NumericLenient,
			want:      true,
		},
		{
			name:      "Strict non-numeric value fails closed",
			predicate: FilterPredicate{Field: "rule.level", Operator: OpGreaterThan, Value: "abc"},
			policy:    NumericStrict,
			want:      false,
		},
		{
			name:      "Lenient non-numeric field coerces to zero",
			predicate: FilterPredicate{Field: "note", Operator: OpLessThan, Value: "1"},
			policy:    NumericLenient,
			want:      true,
		},
		{
			name:      "Strict non-numeric field fails closed",
			predicate: FilterPredicate{Field: "note", Operator: OpLessThan, Value: "1"},
			policy:    NumericStrict,
			want:      false,
		},
		{
			name:      "Missing path coerces to zero for numeric operators",
			predicate: FilterPredicate{Field: "rule.firedtimes", Operator: OpLessThan, Value: "1"},
			policy:    NumericLenient,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.predicate.Matches(record, tt.policy))
		})
	}
}

func TestPredicateExistence(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		operator FilterOperator
		want     bool
	}{
		{
			name:     "Present non-empty value exists",
			record:   Record{"user": "root"},
			operator: OpExists,
			want:     true,
		},
		{
			name:     "Empty string does not exist",
			record:   Record{"user": ""},
			operator: OpExists,
			want:     false,
		},
		{
			name:     "Absent field does not exist",
			record:   Record{},
			operator: OpExists,
			want:     false,
		},
		{
			name:     "Literal null does not exist",
			record:   Record{"user": "null"},
			operator: OpExists,
			want:     false,
		},
		{
			name:     "Literal undefined does not exist",
			record:   Record{"user": "undefined"},
			operator: OpExists,
			want:     false,
		},
		{
			name:     "NotExists inverts",
			record:   Record{"user": ""},
			operator: OpNotExists,
			want:     true,
		},
		{
			name:     "Zero exists as a value",
			record:   Record{"user": float64(0)},
			operator: OpExists,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FilterPredicate{Field: "user", Operator: tt.operator}
			assert.Equal(t, tt.want, p.Matches(tt.record, NumericLenient))
		})
	}
}
