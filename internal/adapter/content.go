package adapter

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// textOf flattens the content shapes providers use into one string: a plain
// string, an array of strings or typed parts, or an object holding parts or
// text. Non-text parts are skipped.
func textOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return ""
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := partText(it); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case '{':
		var obj struct {
			Parts json.RawMessage `json:"parts"`
			Text  *string         `json:"text"`
		}
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		if len(obj.Parts) > 0 {
			return textOf(obj.Parts)
		}
		if obj.Text != nil {
			return *obj.Text
		}
	}
	return ""
}

func partText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		_ = json.Unmarshal(raw, &s)
		return s
	}
	var p struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &p) != nil {
		return ""
	}
	if p.Type != "" && p.Type != "text" {
		return ""
	}
	return p.Text
}

// unixSeconds converts a fractional unix timestamp in seconds.
func unixSeconds(sec float64) time.Time {
	return time.UnixMilli(int64(math.Round(sec * 1000)))
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// decode reports whether body held a JSON value of v's shape.
func decode(body json.RawMessage, v any) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return false
	}
	return json.Unmarshal(body, v) == nil
}
