package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const metaKey = "_meta"

// Document is the aggregate of every collection plus bookkeeping.
type Document struct {
	Revision    int64
	UpdatedAt   time.Time
	Collections map[Collection][]Record
}

type documentMeta struct {
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDocument returns a document holding the default content.
func NewDocument() Document {
	d := Document{Collections: make(map[Collection][]Record, len(Collections))}
	d.Repair()
	return d
}

// DefaultRecords returns the seed content of a collection.
func DefaultRecords(c Collection) []Record {
	switch c {
	case CollectionNavigation:
		items := []struct{ label, url string }{
			{"Home", "/"},
			{"Products", "/products"},
			{"Services", "/services"},
			{"News", "/news"},
			{"Contact", "/contact"},
		}
		out := make([]Record, 0, len(items))
		for i, item := range items {
			out = append(out, Record{
				FieldID:       i + 1,
				"label":       item.label,
				"url":         item.url,
				"order":       i + 1,
				"target":      "",
				FieldChildren: []any{},
			})
		}
		return out
	case CollectionTeam:
		return []Record{{
			FieldID:     1,
			"name":      "Our Team",
			"position":  "",
			"bio":       "",
			"email":     "",
			"phone":     "",
			FieldImages: []string{},
			"socials":   map[string]any{},
			"order":     1,
		}}
	}
	return []Record{}
}

// Repair ensures every collection key exists. Missing collections get their
// default content. It returns the collections that were filled in.
func (d *Document) Repair() []Collection {
	if d.Collections == nil {
		d.Collections = make(map[Collection][]Record, len(Collections))
	}
	var repaired []Collection
	for _, c := range Collections {
		if d.Collections[c] == nil {
			d.Collections[c] = DefaultRecords(c)
			repaired = append(repaired, c)
		}
	}
	return repaired
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		Revision:    d.Revision,
		UpdatedAt:   d.UpdatedAt,
		Collections: make(map[Collection][]Record, len(d.Collections)),
	}
	for c, recs := range d.Collections {
		if recs == nil {
			continue
		}
		cp := make([]Record, len(recs))
		for i, r := range recs {
			cp[i] = r.Clone()
		}
		out.Collections[c] = cp
	}
	return out
}

// MarshalJSON writes the flat on-disk layout: one key per collection plus _meta.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(Collections)+1)
	for _, c := range Collections {
		recs := d.Collections[c]
		if recs == nil {
			recs = []Record{}
		}
		out[string(c)] = recs
	}
	out[metaKey] = documentMeta{Revision: d.Revision, UpdatedAt: d.UpdatedAt}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat layout. A collection whose value is not an
// array is left unset so Repair can restore it; unknown keys are ignored.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	d.Collections = make(map[Collection][]Record, len(Collections))
	for _, c := range Collections {
		payload, ok := raw[string(c)]
		if !ok {
			continue
		}
		var recs []Record
		if err := json.Unmarshal(payload, &recs); err != nil || recs == nil {
			continue
		}
		d.Collections[c] = recs
	}
	if payload, ok := raw[metaKey]; ok {
		var meta documentMeta
		if err := json.Unmarshal(payload, &meta); err == nil {
			d.Revision = meta.Revision
			d.UpdatedAt = meta.UpdatedAt
		}
	}
	return nil
}

// MetaBucket names the bucket that stores the document revision in the
// bucketed backends.
const MetaBucket = metaKey

// EncodeBuckets splits the document into one JSON payload per collection
// plus the meta bucket, as stored by the SQL backends.
func (d Document) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Collections)+1)
	for _, c := range Collections {
		recs := d.Collections[c]
		if recs == nil {
			recs = []Record{}
		}
		data, err := json.Marshal(recs)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c, err)
		}
		out[string(c)] = data
	}
	meta, err := json.Marshal(documentMeta{Revision: d.Revision, UpdatedAt: d.UpdatedAt})
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	out[MetaBucket] = meta
	return out, nil
}

// DecodeBuckets rebuilds a document from bucket payloads. Unknown buckets are
// ignored and missing collections are repaired with their defaults.
func DecodeBuckets(buckets map[string][]byte) (Document, error) {
	d := Document{Collections: make(map[Collection][]Record, len(Collections))}
	for name, payload := range buckets {
		if len(payload) == 0 {
			continue
		}
		if name == MetaBucket {
			var meta documentMeta
			if err := json.Unmarshal(payload, &meta); err != nil {
				return Document{}, fmt.Errorf("decode meta: %w", err)
			}
			d.Revision = meta.Revision
			d.UpdatedAt = meta.UpdatedAt
			continue
		}
		c, ok := ParseCollection(name)
		if !ok {
			continue
		}
		recs, err := DecodeCollection(payload)
		if err != nil {
			return Document{}, fmt.Errorf("decode %s: %w", c, err)
		}
		d.Collections[c] = recs
	}
	d.Repair()
	return d, nil
}

// DecodeCollection decodes one collection payload.
func DecodeCollection(payload []byte) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}
