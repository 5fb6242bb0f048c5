package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one unit of displayed data (an alert, a file-change event, a
// case, an anomaly). Records are opaque field-name-to-value mappings
// identified by their "id" field. They are immutable once built: the engine
// replaces the whole working set on every refresh, it never patches records
// in place.
type Record map[string]interface{}

// ID returns the record's identifier, or "" when none is set.
func (r Record) ID() string {
	return CoerceString(r["id"])
}

// FieldPath resolves a dot-separated path into nested record structure.
// Missing segments resolve to nil; callers coerce per operator semantics
// (empty string for string operators, zero for numeric operators).
func (r Record) FieldPath(path string) interface{} {
	if path == "" {
		return nil
	}

	var current interface{} = map[string]interface{}(r)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			// Records nested via the Record type itself
			if rec, isRec := current.(Record); isRec {
				m = rec
			} else {
				return nil
			}
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// CoerceString converts any field value to its display string form.
// nil becomes the empty string so that missing paths behave like empty
// fields for the string operators.
func CoerceString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; keep integral values clean
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return CoerceString(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// CoerceFloat converts any field value to a float64 for the numeric
// operators. Non-numeric values coerce to 0 with ok=false so callers can
// choose between the lenient (treat as zero) and strict (fail closed)
// policies.
func CoerceFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// timestampLayouts covers the formats the upstream indexer emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceTime parses a field value as a timestamp. Numeric values are
// interpreted as epoch milliseconds (the anomaly-detection API reports
// execution times that way).
func CoerceTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)).UTC(), true
	case int64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(val).UTC(), true
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// FieldExists reports whether a coerced field value counts as present.
// A field "exists" when its string form is non-empty and not the literal
// strings "undefined"/"null" that leak out of upstream JSON.
func FieldExists(v interface{}) bool {
	s := strings.TrimSpace(CoerceString(v))
	return s != "" && !strings.EqualFold(s, "undefined") && !strings.EqualFold(s, "null")
}
