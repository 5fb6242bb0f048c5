package dashboard

// Helpers for digging fields out of upstream _source maps. Upstream JSON is
// best-effort: every accessor degrades to a zero value instead of failing,
// so a malformed document costs one sparse record, not a refresh.

func subMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]interface{})
	return sub
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func strOr(m map[string]interface{}, key, fallback string) string {
	if s := str(m, key); s != "" {
		return s
	}
	return fallback
}

func num(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func strSlice(m map[string]interface{}, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]interface{})
	if !ok {
		// Single values appear un-listed in some rule fields.
		if s, ok := m[key].(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
