package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// redactionAllowlist holds lowercase keys. Lookups are case-insensitive so
// camelCase payload fields match.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"op":        {},
	"method":    {},
	"height":    {},
	"kind":      {},
	"signer":    {},
	"namespace": {},
	"id":        {},
	"from":      {},
	"to":        {},
	"amount":    {},

	"lockboxid":    {},
	"versionid":    {},
	"requestid":    {},
	"node":         {},
	"reader":       {},
	"writer":       {},
	"owner":        {},
	"price":        {},
	"maxprice":     {},
	"publickey":    {},
	"sharinggroup": {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the allowlisted keys, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// MaskJSON turns the fields of a JSON object into log attributes, masking
// every field whose key is not allowlisted. Nested objects become groups.
// Anything that is not an object is masked whole.
func MaskJSON(raw []byte) []any {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return []any{slog.String("raw", MaskValue(string(raw)))}
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys))
	for _, key := range keys {
		value := bytes.TrimSpace(fields[key])
		if len(value) > 0 && value[0] == '{' {
			attrs = append(attrs, slog.Group(key, MaskJSON(value)...))
			continue
		}
		attrs = append(attrs, MaskField(key, scalar(value)))
	}
	return attrs
}

func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
