package domain

import (
	"encoding/json"
	"testing"
)

func TestSchemaDecodeRejectsUnknownField(t *testing.T) {
	schema, _ := SchemaFor(CollectionProducts)
	_, err := schema.Decode(map[string]any{"name": "Lamp", "colour": "red"})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	ve, _ := err.(ValidationError)
	if ve.Field != "colour" {
		t.Fatalf("expected field colour, got %q", ve.Field)
	}
}

func TestSchemaDecodeDropsSystemFields(t *testing.T) {
	schema, _ := SchemaFor(CollectionNews)
	rec, err := schema.Decode(map[string]any{"id": 9, "revision": 4, "title": "Hello"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := rec["id"]; ok {
		t.Fatalf("id must be dropped: %v", rec)
	}
	if rec.String("title") != "Hello" {
		t.Fatalf("unexpected title %v", rec["title"])
	}
}

func TestSchemaDecodeKinds(t *testing.T) {
	schema, _ := SchemaFor(CollectionProducts)
	rec, err := schema.Decode(map[string]any{
		"price":      "12.5",
		"categoryId": float64(3),
		"featured":   "true",
		"images":     "/uploads/a.jpg",
		"tags":       []any{"x", "y"},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["price"] != 12.5 {
		t.Fatalf("price not coerced: %#v", rec["price"])
	}
	if rec["categoryId"] != 3 {
		t.Fatalf("categoryId not coerced: %#v", rec["categoryId"])
	}
	if rec["featured"] != true {
		t.Fatalf("featured not coerced: %#v", rec["featured"])
	}
	imgs, _ := rec["images"].([]string)
	if len(imgs) != 1 || imgs[0] != "/uploads/a.jpg" {
		t.Fatalf("images not normalized: %#v", rec["images"])
	}
	if _, err := schema.Decode(map[string]any{"price": "cheap"}); !IsValidation(err) {
		t.Fatalf("expected validation error for bad price, got %v", err)
	}
	if _, err := schema.Decode(map[string]any{"images": []any{1}}); !IsValidation(err) {
		t.Fatalf("expected validation error for bad images, got %v", err)
	}
}

func TestSchemaApplyDefaults(t *testing.T) {
	schema, _ := SchemaFor(CollectionContacts)
	rec := Record{"name": "Ana"}
	schema.ApplyDefaults(rec)
	if rec.String("status") != "new" {
		t.Fatalf("expected status default, got %v", rec["status"])
	}
	if rec.String("message") != "" {
		t.Fatalf("expected empty message default, got %v", rec["message"])
	}
	if rec.String("name") != "Ana" {
		t.Fatalf("defaults must not overwrite present values")
	}
}

func TestSchemaDecodeNavigationChildren(t *testing.T) {
	schema, _ := SchemaFor(CollectionNavigation)
	rec, err := schema.Decode(map[string]any{
		"label":    "Products",
		"children": []any{map[string]any{"id": 7, "label": "Lamps", "url": "/products/lamps"}},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	children := rec.Children()
	if len(children) != 1 || children[0].ID() != 7 || children[0].String("label") != "Lamps" {
		t.Fatalf("unexpected children %v", children)
	}
	if _, err := schema.Decode(map[string]any{"children": []any{map[string]any{"bogus": 1}}}); !IsValidation(err) {
		t.Fatalf("expected nested validation error, got %v", err)
	}
}

func TestSchemaCoerceForm(t *testing.T) {
	schema, _ := SchemaFor(CollectionProducts)
	in := schema.Coerce(map[string][]string{
		"name":           {"Lamp"},
		"tags":           {`["a","b"]`},
		"specifications": {`{"watts":40}`},
	})
	rec, err := schema.Decode(in)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tags, _ := rec["tags"].([]string)
	if len(tags) != 2 {
		t.Fatalf("unexpected tags %#v", rec["tags"])
	}
	specs, _ := rec["specifications"].(map[string]any)
	if specs["watts"] != float64(40) {
		t.Fatalf("unexpected specifications %#v", rec["specifications"])
	}
}

func TestSchemaCoerceCheckboxValues(t *testing.T) {
	schema, _ := SchemaFor(CollectionProducts)
	cases := []struct {
		values []string
		want   bool
	}{
		{[]string{"on"}, true},
		{[]string{"ON"}, true},
		{[]string{"off"}, false},
		{[]string{"true"}, true},
		{[]string{"false", "on"}, true},
	}
	for _, tc := range cases {
		rec, err := schema.Decode(schema.Coerce(map[string][]string{"featured": tc.values}))
		if err != nil {
			t.Fatalf("decode %v: %v", tc.values, err)
		}
		if rec["featured"] != tc.want {
			t.Fatalf("featured=%v: got %#v", tc.values, rec["featured"])
		}
	}
	if _, err := schema.Decode(schema.Coerce(map[string][]string{"featured": {"maybe"}})); !IsValidation(err) {
		t.Fatalf("expected validation error for non-boolean, got %v", err)
	}
}

func TestDocumentRoundTripRepairsMissingCollections(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{"products":[{"id":1,"name":"A"}],"team":{"oops":true}}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	repaired := doc.Repair()
	if len(repaired) != len(Collections)-1 {
		t.Fatalf("expected every collection except products repaired, got %v", repaired)
	}
	if len(doc.Collections[CollectionTeam]) != 1 {
		t.Fatalf("expected team default")
	}
	if doc.Collections[CollectionProducts][0].ID() != 1 {
		t.Fatalf("unexpected products %v", doc.Collections[CollectionProducts])
	}
}

func TestDocumentBuckets(t *testing.T) {
	doc := NewDocument()
	doc.Revision = 5
	doc.Collections[CollectionNews] = []Record{{"id": 2, "title": "Hi"}}
	buckets, err := doc.EncodeBuckets()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buckets) != len(Collections)+1 {
		t.Fatalf("expected one bucket per collection plus meta, got %d", len(buckets))
	}
	back, err := DecodeBuckets(buckets)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Revision != 5 || len(back.Collections[CollectionNews]) != 1 {
		t.Fatalf("unexpected document %+v", back)
	}
}

func TestRecordHelpers(t *testing.T) {
	r := Record{"id": float64(4), "revision": "2", "images": []any{"/a.png", ""}}
	if r.ID() != 4 || r.Revision() != 2 {
		t.Fatalf("unexpected id/revision %d/%d", r.ID(), r.Revision())
	}
	if imgs := r.Images(); len(imgs) != 1 {
		t.Fatalf("expected blank image dropped, got %v", imgs)
	}
	if NextID(nil) != 1 {
		t.Fatalf("expected first id 1")
	}
	if NextID([]Record{{"id": 2}, {"id": 9}}) != 10 {
		t.Fatalf("expected max+1")
	}
	users := Record{"username": "a", "passwordHash": "x"}
	if _, ok := users.Public()["passwordHash"]; ok {
		t.Fatalf("password hash leaked")
	}
	if _, ok := ParseCollection("Products"); !ok {
		t.Fatalf("expected case-insensitive collection parse")
	}
	if (ErrNotFound{Collection: CollectionProducts, ID: 9999}).Error() != "Product not found" {
		t.Fatalf("unexpected not-found message")
	}
}
