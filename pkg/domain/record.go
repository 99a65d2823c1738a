package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// System fields are maintained by the store and ignored on input.
const (
	FieldID        = "id"
	FieldRevision  = "revision"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldImages    = "images"
	FieldChildren  = "children"
	FieldSlug      = "slug"
)

// SystemFields lists the keys a client cannot set directly.
var SystemFields = []string{FieldID, FieldRevision, FieldCreatedAt, FieldUpdatedAt}

// Record is a single entry of a collection. Values are JSON-compatible.
type Record map[string]any

// ID returns the integer id of the record or 0 when absent or malformed.
func (r Record) ID() int {
	return toInt(r[FieldID])
}

// Revision returns the record revision (0 for records written before revisions existed).
func (r Record) Revision() int {
	return toInt(r[FieldRevision])
}

// String returns the string value at key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool returns the boolean value at key.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Time parses an RFC3339 timestamp stored at key.
func (r Record) Time(key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.String(key))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Images returns the normalized image paths of the record.
func (r Record) Images() []string {
	imgs, err := NormalizeImages(r[FieldImages])
	if err != nil {
		return nil
	}
	return imgs
}

// Children returns the nested navigation items of the record.
func (r Record) Children() []Record {
	switch v := r[FieldChildren].(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case Record:
				out = append(out, m)
			case map[string]any:
				out = append(out, Record(m))
			}
		}
		return out
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Public returns a copy without fields that must never leave the process.
func (r Record) Public() Record {
	out := r.Clone()
	delete(out, "passwordHash")
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case []Record:
		out := make([]Record, len(t))
		for i, item := range t {
			out[i] = item.Clone()
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

func toInt(v any) int {
	i, _ := ToInt(v)
	return i
}

// ToInt converts a JSON-compatible value to an int; ok is false for non-integers.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// NextID returns max(existing ids)+1, or 1 for an empty slice.
func NextID(records []Record) int {
	maxID := 0
	for _, r := range records {
		if id := r.ID(); id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// IndexOf returns the position of the record with id, or -1.
func IndexOf(records []Record, id int) int {
	for i, r := range records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
