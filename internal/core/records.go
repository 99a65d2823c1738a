package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"sitecontent/internal/slug"
	"sitecontent/pkg/domain"
)

// ListQuery narrows and orders a collection listing.
type ListQuery struct {
	// Category matches categoryId (string form) or category (case-insensitive).
	Category string
	Featured *bool
	Limit    int
	// Sort is "recent" (createdAt descending) or empty for document order.
	Sort string
	// Filters holds equality filters on schema fields.
	Filters map[string]string
}

// Input carries client-provided values for create and update.
type Input struct {
	Fields map[string]any
	// Uploaded holds public paths of files uploaded with the request.
	Uploaded []string
	// ReplaceImages replaces the image list instead of appending to it.
	ReplaceImages bool
	// ExpectedRevision enables optimistic concurrency when positive.
	ExpectedRevision int
}

func unknownCollection(c Collection) error {
	return fmt.Errorf("%w: %s", domain.ErrUnknownCollection, c)
}

// List returns the records of c that match q.
func (s *Service) List(ctx context.Context, c Collection, q ListQuery) ([]Record, error) {
	if !c.Valid() {
		return nil, unknownCollection(c)
	}
	var recs []Record
	if err := s.view(ctx, "list_"+string(c), func(v View) error {
		recs = v.List(c)
		return nil
	}); err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if matches(r, q) {
			out = append(out, r)
		}
	}
	switch {
	case c == domain.CollectionNavigation:
		sortNavigation(out)
	case q.Sort == "recent" || (q.Sort == "" && c == domain.CollectionNews):
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Time(domain.FieldCreatedAt).After(out[j].Time(domain.FieldCreatedAt))
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return publicAll(out), nil
}

func matches(r Record, q ListQuery) bool {
	if q.Category != "" {
		byID := formatValue(r["categoryId"]) == q.Category
		byName := strings.EqualFold(r.String("category"), q.Category)
		if !byID && !byName {
			return false
		}
	}
	if q.Featured != nil && r.Bool("featured") != *q.Featured {
		return false
	}
	for key, want := range q.Filters {
		got, ok := r[key]
		if !ok || !strings.EqualFold(formatValue(got), want) {
			return false
		}
	}
	return true
}

// formatValue renders a stored value the way clients write it in a query
// string. Numbers never use exponent form.
func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

func sortNavigation(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		oi, _ := domain.ToInt(recs[i]["order"])
		oj, _ := domain.ToInt(recs[j]["order"])
		if oi != oj {
			return oi < oj
		}
		return recs[i].ID() < recs[j].ID()
	})
}

func publicAll(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Public()
	}
	return out
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, c Collection, id int) (Record, error) {
	if !c.Valid() {
		return nil, unknownCollection(c)
	}
	if c == domain.CollectionNavigation {
		return s.GetNavigation(ctx, id)
	}
	var rec Record
	err := s.view(ctx, "get_"+string(c), func(v View) error {
		found, ok := v.Find(c, id)
		if !ok {
			return domain.ErrNotFound{Collection: c, ID: id}
		}
		rec = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec.Public(), nil
}

// GetBySlug returns the first record of c whose slug equals value.
func (s *Service) GetBySlug(ctx context.Context, c Collection, value string) (Record, error) {
	schema, ok := domain.SchemaFor(c)
	if !ok {
		return nil, unknownCollection(c)
	}
	if schema.SlugFrom == "" {
		return nil, domain.ValidationError{Field: domain.FieldSlug, Reason: fmt.Sprintf("%s has no slugs", c)}
	}
	var rec Record
	err := s.view(ctx, "get_slug_"+string(c), func(v View) error {
		for _, r := range v.List(c) {
			if r.String(domain.FieldSlug) == value {
				rec = r
				return nil
			}
		}
		return domain.ErrNotFound{Collection: c}
	})
	if err != nil {
		return nil, err
	}
	return rec.Public(), nil
}

// Create validates in, applies defaults and appends a new record to c.
func (s *Service) Create(ctx context.Context, c Collection, in Input) (Record, error) {
	schema, ok := domain.SchemaFor(c)
	if !ok {
		return nil, unknownCollection(c)
	}
	fields, err := s.prepareFields(c, in.Fields)
	if err != nil {
		return nil, err
	}
	rec, err := schema.Decode(fields)
	if err != nil {
		return nil, err
	}
	if err := checkUploads(c, schema, in); err != nil {
		return nil, err
	}
	if schemaHasImages(schema) {
		rec[domain.FieldImages] = dedupe(append(rec.Images(), in.Uploaded...))
	}
	schema.ApplyDefaults(rec)

	var created Record
	_, err = s.run(ctx, "create_"+string(c), func(tx Transaction) error {
		if c == domain.CollectionNavigation {
			next := nextNavigationID(tx.List(c))
			rec[domain.FieldID] = next
			assignChildIDs(rec, next+1)
		}
		if schema.SlugFrom != "" && rec.String(domain.FieldSlug) == "" {
			rec[domain.FieldSlug] = uniqueSlug(tx.List(c), slug.Make(rec.String(schema.SlugFrom)), 0)
		}
		var err error
		created, err = tx.Create(c, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("record created", "collection", c, "id", created.ID())
	return created.Public(), nil
}

// Update merges in into the record with id. Present, non-empty fields
// overwrite; omitted ones are kept. The merge is applied to the current
// committed record so concurrent updates of different fields both survive.
func (s *Service) Update(ctx context.Context, c Collection, id int, in Input) (Record, error) {
	schema, ok := domain.SchemaFor(c)
	if !ok {
		return nil, unknownCollection(c)
	}
	expected := in.ExpectedRevision
	if expected <= 0 {
		expected, _ = domain.ToInt(in.Fields[domain.FieldRevision])
	}
	fields, err := s.prepareFields(c, in.Fields)
	if err != nil {
		return nil, err
	}
	patch, err := schema.Decode(fields)
	if err != nil {
		return nil, err
	}
	if err := checkUploads(c, schema, in); err != nil {
		return nil, err
	}
	if c == domain.CollectionNavigation {
		return s.updateNavigation(ctx, id, patch, expected)
	}

	var updated Record
	var dropped []string
	_, err = s.run(ctx, "update_"+string(c), func(tx Transaction) error {
		var err error
		updated, err = tx.Update(c, id, func(current Record) error {
			if expected > 0 && current.Revision() != expected {
				return domain.ConflictError{Collection: c, ID: id, Expected: expected, Actual: current.Revision()}
			}
			before := current.Images()
			merge(current, patch)
			if schemaHasImages(schema) {
				dropped = mergeImages(current, before, patch, in)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.removeUploads(ctx, dropped)
	return updated.Public(), nil
}

// Delete removes the record with id and best-effort deletes the uploaded
// images it referenced.
func (s *Service) Delete(ctx context.Context, c Collection, id int) (Record, error) {
	if !c.Valid() {
		return nil, unknownCollection(c)
	}
	if c == domain.CollectionNavigation {
		return s.deleteNavigation(ctx, id)
	}
	var removed Record
	_, err := s.run(ctx, "delete_"+string(c), func(tx Transaction) error {
		var err error
		removed, err = tx.Delete(c, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("record deleted", "collection", c, "id", id)
	s.removeUploads(ctx, removed.Images())
	return removed.Public(), nil
}

// prepareFields strips transport-level keys and handles collection specific
// inputs before schema validation.
func (s *Service) prepareFields(c Collection, in map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(in))
	for k, v := range in {
		fields[k] = v
	}
	delete(fields, "replaceImages")
	if c == domain.CollectionUsers {
		delete(fields, "passwordHash")
		if raw, ok := fields["password"]; ok {
			delete(fields, "password")
			password, _ := raw.(string)
			if password != "" {
				hash, err := HashPassword(password)
				if err != nil {
					return nil, err
				}
				fields["passwordHash"] = hash
			}
		}
	}
	return fields, nil
}

// merge copies every non-empty value of patch into current.
func merge(current, patch Record) {
	for k, v := range patch {
		if k == domain.FieldImages || isEmpty(v) {
			continue
		}
		current[k] = v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// mergeImages applies the image rules of an update and returns the images
// that are no longer referenced.
func mergeImages(current Record, before []string, patch Record, in Input) []string {
	var incoming []string
	if raw, ok := patch[domain.FieldImages]; ok {
		incoming, _ = domain.NormalizeImages(raw)
	}
	incoming = append(incoming, in.Uploaded...)
	if len(in.Uploaded) > 0 || in.ReplaceImages {
		next := dedupe(incoming)
		current[domain.FieldImages] = next
		var dropped []string
		for _, img := range before {
			if !slices.Contains(next, img) {
				dropped = append(dropped, img)
			}
		}
		return dropped
	}
	current[domain.FieldImages] = dedupe(append(before, incoming...))
	return nil
}

// checkUploads rejects uploaded files for collections without an images field.
func checkUploads(c Collection, schema domain.Schema, in Input) error {
	if len(in.Uploaded) > 0 && !schemaHasImages(schema) {
		return domain.ValidationError{Field: domain.FieldImages, Reason: fmt.Sprintf("%s does not accept images", c)}
	}
	return nil
}

func schemaHasImages(schema domain.Schema) bool {
	_, ok := schema.Field(domain.FieldImages)
	return ok
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// uniqueSlug appends -2, -3, ... to base until no record other than skipID uses it.
func uniqueSlug(recs []Record, base string, skipID int) string {
	if base == "" {
		return ""
	}
	taken := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.ID() != skipID {
			taken[r.String(domain.FieldSlug)] = true
		}
	}
	candidate := base
	for n := 2; taken[candidate]; n++ {
		candidate = base + "-" + strconv.Itoa(n)
	}
	return candidate
}
