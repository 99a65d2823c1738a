package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind is the JSON shape a schema field accepts.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindInt      Kind = "int"
	KindBool     Kind = "bool"
	KindStrings  Kind = "strings"
	KindImages   Kind = "images"
	KindChildren Kind = "children"
	KindObject   Kind = "object"
)

// Field describes one client-settable key of a record.
type Field struct {
	Name    string
	Kind    Kind
	Default any
}

// Schema is the closed set of fields a collection accepts.
type Schema struct {
	Collection Collection
	Fields     []Field
	// SlugFrom names the field a missing slug is derived from.
	SlugFrom string
}

func str(name string) Field { return Field{Name: name, Kind: KindString, Default: ""} }
func num(name string) Field { return Field{Name: name, Kind: KindNumber, Default: float64(0)} }
func integer(name string) Field { return Field{Name: name, Kind: KindInt, Default: 0} }
func boolean(name string) Field { return Field{Name: name, Kind: KindBool, Default: false} }
func strs(name string) Field { return Field{Name: name, Kind: KindStrings, Default: []string{}} }
func object(name string) Field { return Field{Name: name, Kind: KindObject, Default: map[string]any{}} }
func images() Field { return Field{Name: FieldImages, Kind: KindImages, Default: []string{}} }
func strDefault(name, d string) Field { return Field{Name: name, Kind: KindString, Default: d} }

var schemas = map[Collection]Schema{
	CollectionProducts: {
		Collection: CollectionProducts,
		SlugFrom:   "name",
		Fields: []Field{
			str("name"), str(FieldSlug), str("summary"), str("description"), num("price"),
			integer("categoryId"), str("category"), boolean("featured"), images(),
			object("specifications"), strs("tags"), strDefault("status", "active"),
		},
	},
	CollectionServices: {
		Collection: CollectionServices,
		SlugFrom:   "name",
		Fields: []Field{
			str("name"), str(FieldSlug), str("summary"), str("description"), str("icon"),
			num("price"), boolean("featured"), images(), strs("features"), integer("order"),
		},
	},
	CollectionNews: {
		Collection: CollectionNews,
		SlugFrom:   "title",
		Fields: []Field{
			str("title"), str(FieldSlug), str("summary"), str("content"), str("author"),
			str("category"), str("publishedAt"), boolean("featured"), images(), strs("tags"),
		},
	},
	CollectionExperiences: {
		Collection: CollectionExperiences,
		SlugFrom:   "title",
		Fields: []Field{
			str("title"), str(FieldSlug), str("description"), str("client"), str("location"),
			str("date"), str("category"), boolean("featured"), images(),
		},
	},
	CollectionTeam: {
		Collection: CollectionTeam,
		Fields: []Field{
			str("name"), str("position"), str("bio"), str("email"), str("phone"),
			images(), object("socials"), integer("order"),
		},
	},
	CollectionNavigation: {
		Collection: CollectionNavigation,
		Fields: []Field{
			str("label"), strDefault("url", "/"), integer("order"), str("target"),
			{Name: FieldChildren, Kind: KindChildren, Default: []any{}},
		},
	},
	CollectionImages: {
		Collection: CollectionImages,
		Fields: []Field{
			str("title"), str("description"), str("url"), str("alt"), str("category"), images(),
		},
	},
	CollectionContacts: {
		Collection: CollectionContacts,
		Fields: []Field{
			str("name"), str("email"), str("phone"), str("subject"), str("message"),
			strDefault("status", "new"),
		},
	},
	CollectionUsers: {
		Collection: CollectionUsers,
		Fields: []Field{
			str("username"), str("email"), strDefault("role", "admin"), str("passwordHash"),
		},
	},
}

// SchemaFor returns the schema of a collection.
func SchemaFor(c Collection) (Schema, bool) {
	s, ok := schemas[c]
	return s, ok
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Decode validates client input against the schema and returns the
// normalized values. System fields are dropped, unknown fields and values of
// the wrong shape are rejected. Null values are kept as nil.
func (s Schema) Decode(input map[string]any) (Record, error) {
	out := make(Record, len(input))
	for key, raw := range input {
		if slices.Contains(SystemFields, key) {
			continue
		}
		field, ok := s.Field(key)
		if !ok {
			return nil, ValidationError{Field: key, Reason: fmt.Sprintf("unknown field for %s", s.Collection)}
		}
		if raw == nil {
			out[key] = nil
			continue
		}
		v, err := field.normalize(raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// Coerce converts multipart form values to typed input suitable for Decode.
// Keys outside the schema are passed through so Decode can reject them.
func (s Schema) Coerce(form map[string][]string) map[string]any {
	out := make(map[string]any, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		field, ok := s.Field(key)
		if !ok {
			out[key] = values[0]
			continue
		}
		switch field.Kind {
		case KindStrings, KindImages:
			if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
				var list []any
				if err := json.Unmarshal([]byte(values[0]), &list); err == nil {
					out[key] = list
					continue
				}
			}
			list := make([]any, 0, len(values))
			for _, v := range values {
				list = append(list, v)
			}
			out[key] = list
		case KindBool:
			// A checkbox behind a hidden input submits two values; the last wins.
			out[key] = checkboxValue(values[len(values)-1])
		case KindObject, KindChildren:
			var decoded any
			if err := json.Unmarshal([]byte(values[0]), &decoded); err == nil {
				out[key] = decoded
			} else {
				out[key] = values[0]
			}
		default:
			out[key] = values[0]
		}
	}
	return out
}

// ApplyDefaults fills every field missing from r (or set to nil) with its default.
func (s Schema) ApplyDefaults(r Record) {
	for _, f := range s.Fields {
		if v, ok := r[f.Name]; ok && v != nil {
			continue
		}
		r[f.Name] = cloneValue(f.Default)
	}
}

// checkboxValue maps HTML checkbox submissions onto booleans and leaves
// anything else for normalize to validate.
func checkboxValue(v string) any {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true
	case "off", "no":
		return false
	}
	return v
}

func (f Field) normalize(raw any) (any, error) {
	invalid := func(want string) error {
		return ValidationError{Field: f.Name, Reason: "expected " + want}
	}
	switch f.Kind {
	case KindString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64, int, json.Number, bool:
			return fmt.Sprint(v), nil
		}
		return nil, invalid("string")
	case KindNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return nil, invalid("number")
			}
			return n, nil
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, nil
			}
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, invalid("number")
			}
			return n, nil
		}
		return nil, invalid("number")
	case KindInt:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		n, ok := ToInt(raw)
		if !ok {
			return nil, invalid("integer")
		}
		return n, nil
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, nil
			}
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, invalid("boolean")
			}
			return b, nil
		}
		return nil, invalid("boolean")
	case KindStrings:
		switch v := raw.(type) {
		case string:
			if v == "" {
				return []string{}, nil
			}
			return []string{v}, nil
		case []string:
			return slices.Clone(v), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, invalid("array of strings")
				}
				out = append(out, s)
			}
			return out, nil
		}
		return nil, invalid("array of strings")
	case KindImages:
		imgs, err := NormalizeImages(raw)
		if err != nil {
			return nil, ValidationError{Field: f.Name, Reason: err.Error()}
		}
		return imgs, nil
	case KindObject:
		if m, ok := raw.(map[string]any); ok {
			return map[string]any(Record(m).Clone()), nil
		}
		return nil, invalid("object")
	case KindChildren:
		list, ok := raw.([]any)
		if !ok {
			if recs, isRecs := raw.([]Record); isRecs {
				list = make([]any, len(recs))
				for i, r := range recs {
					list[i] = map[string]any(r)
				}
			} else {
				return nil, invalid("array of navigation items")
			}
		}
		nav := schemas[CollectionNavigation]
		out := make([]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, invalid("array of navigation items")
			}
			child, err := nav.Decode(m)
			if err != nil {
				return nil, err
			}
			if id, ok := ToInt(m[FieldID]); ok && id > 0 {
				child[FieldID] = id
			}
			out = append(out, map[string]any(child))
		}
		return out, nil
	}
	return raw, nil
}

// NormalizeImages turns the loosely shaped images value (absent, a single
// path, or a list of paths) into a list of non-empty paths.
func NormalizeImages(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}, nil
		}
		return []string{t}, nil
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("images must be strings")
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("images must be a path or a list of paths")
}
