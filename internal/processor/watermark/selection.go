package watermark

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Region is one rectangle in source-pixel coordinates. Coordinates stay as
// floats until the filter is built. Timestamp is carried through storage but
// does not affect processing.
type Region struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Width     float64  `json:"width"`
	Height    float64  `json:"height"`
	Timestamp *float64 `json:"timestamp,omitempty"`

	invalid bool
}

// Valid reports whether every coordinate parsed as a number.
func (r Region) Valid() bool {
	return !r.invalid
}

// UnmarshalJSON accepts numbers or numeric strings. Missing coordinates are
// zero; anything unparseable marks the region invalid instead of failing.
func (r *Region) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*r = Region{invalid: true}
		return nil
	}

	*r = Region{}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"x", &r.X},
		{"y", &r.Y},
		{"width", &r.Width},
		{"height", &r.Height},
	}
	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok {
			continue
		}
		n, ok := lenientNumber(v)
		if !ok {
			r.invalid = true
			continue
		}
		*f.dst = n
	}

	if v, ok := raw["timestamp"]; ok {
		if n, ok := lenientNumber(v); ok {
			r.Timestamp = &n
		}
	}
	return nil
}

func lenientNumber(v json.RawMessage) (float64, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return 0, false
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case 'n', 't', 'f', '{', '[':
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

// splitSelections extracts the raw rectangle items from a blob in either the
// bare-array or the {"watermarks": [...]} form. ok is false when the blob is
// neither.
func splitSelections(blob []byte) (items []json.RawMessage, ok bool) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, false
	}
	switch blob[0] {
	case '[':
		if err := json.Unmarshal(blob, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var env map[string]json.RawMessage
		if err := json.Unmarshal(blob, &env); err != nil {
			return nil, false
		}
		raw, found := env["watermarks"]
		if !found {
			return nil, false
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return []json.RawMessage{}, true
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false
		}
		return items, true
	}
	return nil, false
}

// DecodeSelections never fails: malformed blobs decode to no regions.
// Order is preserved.
func DecodeSelections(blob []byte) []Region {
	items, ok := splitSelections(blob)
	if !ok {
		return nil
	}
	regions := make([]Region, 0, len(items))
	for _, item := range items {
		var r Region
		_ = r.UnmarshalJSON(item)
		regions = append(regions, r)
	}
	return regions
}
