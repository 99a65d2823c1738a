package core_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sitecontent/internal/blob"
	"sitecontent/internal/core"
	"sitecontent/pkg/domain"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetrics) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestCreateAssignsIdentityAndDefaults(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()

	rec, err := svc.Create(ctx, domain.CollectionProducts, core.Input{Fields: map[string]any{"name": "Test"}})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if rec.ID() != 1 || rec.Revision() != 1 {
		t.Fatalf("unexpected identity %v", rec)
	}
	if rec.String(domain.FieldSlug) != "test" {
		t.Fatalf("expected slug test, got %q", rec.String(domain.FieldSlug))
	}
	if rec.String(domain.FieldCreatedAt) == "" || rec.String(domain.FieldUpdatedAt) == "" {
		t.Fatalf("expected timestamps, got %v", rec)
	}
	if imgs := rec.Images(); len(imgs) != 0 {
		t.Fatalf("expected empty images, got %v", imgs)
	}

	second, err := svc.Create(ctx, domain.CollectionProducts, core.Input{Fields: map[string]any{"name": "Test"}})
	if err != nil {
		t.Fatalf("create second product: %v", err)
	}
	if second.ID() != 2 || second.String(domain.FieldSlug) != "test-2" {
		t.Fatalf("expected id 2 slug test-2, got %v", second)
	}
}

func TestCreateRejectsUnknownFieldsAndCollections(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CollectionProducts, core.Input{Fields: map[string]any{"bogus": 1}})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.Create(ctx, domain.Collection("widgets"), core.Input{})
	if !errors.Is(err, domain.ErrUnknownCollection) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
	_, err = svc.Create(ctx, domain.CollectionContacts, core.Input{Uploaded: []string{"/uploads/a.png"}})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for uploads on contacts, got %v", err)
	}
}

func TestListFiltersAndOrdering(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	seed := []map[string]any{
		{"name": "A", "category": "Tools", "featured": true},
		{"name": "B", "category": "tools"},
		{"name": "C", "category": "Garden", "featured": true},
	}
	for _, fields := range seed {
		if _, err := svc.Create(ctx, domain.CollectionProducts, core.Input{Fields: fields}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	tools, err := svc.List(ctx, domain.CollectionProducts, core.ListQuery{Category: "TOOLS"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}

	featured := true
	list, err := svc.List(ctx, domain.CollectionProducts, core.ListQuery{Featured: &featured, Limit: 1})
	if err != nil {
		t.Fatalf("list featured: %v", err)
	}
	if len(list) != 1 || list[0].String("name") != "A" {
		t.Fatalf("unexpected featured list %v", list)
	}

	navItems, err := svc.List(ctx, domain.CollectionNavigation, core.ListQuery{})
	if err != nil {
		t.Fatalf("list navigation: %v", err)
	}
	if len(navItems) != 5 || navItems[0].String("label") != "Home" {
		t.Fatalf("unexpected default navigation %v", navItems)
	}
}

func TestGetNotFoundMessage(t *testing.T) {
	svc := core.NewInMemoryService()
	_, err := svc.Get(context.Background(), domain.CollectionProducts, 99)
	if !domain.IsNotFound(err) || err.Error() != "Product not found" {
		t.Fatalf("expected Product not found, got %v", err)
	}
}

func TestGetBySlug(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	if _, err := svc.Create(ctx, domain.CollectionNews, core.Input{Fields: map[string]any{"title": "Grand Opening!"}}); err != nil {
		t.Fatalf("create news: %v", err)
	}
	rec, err := svc.GetBySlug(ctx, domain.CollectionNews, "grand-opening")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if rec.String("title") != "Grand Opening!" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, err := svc.GetBySlug(ctx, domain.CollectionNews, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateMergesAndKeepsOmittedFields(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	rec, err := svc.Create(ctx, domain.CollectionServices, core.Input{Fields: map[string]any{
		"name":        "Repair",
		"description": "Fixes things",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := svc.Update(ctx, domain.CollectionServices, rec.ID(), core.Input{Fields: map[string]any{
		"name":        "Repairs",
		"description": "",
	}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.String("name") != "Repairs" || updated.String("description") != "Fixes things" {
		t.Fatalf("unexpected merge result %v", updated)
	}
	if updated.Revision() != 2 || updated.String(domain.FieldCreatedAt) != rec.String(domain.FieldCreatedAt) {
		t.Fatalf("identity not preserved %v", updated)
	}
}

func TestConcurrentUpdatesOfDifferentFieldsBothSurvive(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	rec, err := svc.Create(ctx, domain.CollectionTeam, core.Input{Fields: map[string]any{"name": "Ada"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, fields := range []map[string]any{{"position": "CTO"}, {"bio": "Engineer"}} {
		wg.Add(1)
		go func(fields map[string]any) {
			defer wg.Done()
			_, err := svc.Update(ctx, domain.CollectionTeam, rec.ID(), core.Input{Fields: fields})
			errs <- err
		}(fields)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	got, err := svc.Get(ctx, domain.CollectionTeam, rec.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.String("position") != "CTO" || got.String("bio") != "Engineer" {
		t.Fatalf("lost update: %v", got)
	}
	if got.Revision() != 3 {
		t.Fatalf("expected revision 3, got %d", got.Revision())
	}
}

func TestUpdateWithStaleRevisionConflicts(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	rec, err := svc.Create(ctx, domain.CollectionExperiences, core.Input{Fields: map[string]any{"title": "Tour"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(ctx, domain.CollectionExperiences, rec.ID(), core.Input{
		Fields:           map[string]any{"title": "Tour 2"},
		ExpectedRevision: 1,
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	_, err = svc.Update(ctx, domain.CollectionExperiences, rec.ID(), core.Input{
		Fields: map[string]any{"title": "Tour 3", "revision": 1},
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := svc.Get(ctx, domain.CollectionExperiences, rec.ID())
	if got.String("title") != "Tour 2" {
		t.Fatalf("conflicting update applied: %v", got)
	}
}

func TestUpdateImagesAppendOrReplace(t *testing.T) {
	blobs := blob.NewMemory()
	ctx := context.Background()
	for _, key := range []string{"uploads/a.png", "uploads/b.png"} {
		if _, err := blobs.Put(ctx, key, strings.NewReader("png"), blob.PutOptions{ContentType: "image/png"}); err != nil {
			t.Fatalf("seed blob: %v", err)
		}
	}
	var removed []string
	svc := core.NewInMemoryService(
		core.WithBlobStore(blobs),
		core.WithBlobRemovedHook(func(key string) { removed = append(removed, key) }),
	)

	rec, err := svc.Create(ctx, domain.CollectionProducts, core.Input{
		Fields:   map[string]any{"name": "Lamp", "images": "/images/static.jpg"},
		Uploaded: []string{"/uploads/a.png"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if imgs := rec.Images(); len(imgs) != 2 || imgs[0] != "/images/static.jpg" || imgs[1] != "/uploads/a.png" {
		t.Fatalf("unexpected images %v", imgs)
	}

	appended, err := svc.Update(ctx, domain.CollectionProducts, rec.ID(), core.Input{
		Fields: map[string]any{"images": []any{"/uploads/a.png", "/images/extra.jpg"}},
	})
	if err != nil {
		t.Fatalf("append update: %v", err)
	}
	if imgs := appended.Images(); len(imgs) != 3 {
		t.Fatalf("expected deduped append of 3 images, got %v", imgs)
	}

	replaced, err := svc.Update(ctx, domain.CollectionProducts, rec.ID(), core.Input{
		Uploaded: []string{"/uploads/b.png"},
	})
	if err != nil {
		t.Fatalf("replace update: %v", err)
	}
	if imgs := replaced.Images(); len(imgs) != 1 || imgs[0] != "/uploads/b.png" {
		t.Fatalf("expected replaced images, got %v", imgs)
	}
	if _, err := blobs.Head(ctx, "uploads/a.png"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected dropped upload removed, got %v", err)
	}
	if len(removed) != 1 || removed[0] != "uploads/a.png" {
		t.Fatalf("unexpected removal hook calls %v", removed)
	}

	if _, err := svc.Delete(ctx, domain.CollectionProducts, rec.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := blobs.Head(ctx, "uploads/b.png"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected upload removed on delete, got %v", err)
	}
}

func TestDeleteReturnsRemovedRecord(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	rec, err := svc.Create(ctx, domain.CollectionContacts, core.Input{Fields: map[string]any{"name": "Bob", "email": "bob@example.com"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.String("status") != "new" {
		t.Fatalf("expected default status new, got %q", rec.String("status"))
	}
	removed, err := svc.Delete(ctx, domain.CollectionContacts, rec.ID())
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed.String("name") != "Bob" {
		t.Fatalf("unexpected removed record %v", removed)
	}
	if _, err := svc.Delete(ctx, domain.CollectionContacts, rec.ID()); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestServiceRecordsMetrics(t *testing.T) {
	metrics := &captureMetrics{}
	svc := core.NewInMemoryService(core.WithMetrics(metrics))
	ctx := context.Background()
	if _, err := svc.Create(ctx, domain.CollectionNews, core.Input{Fields: map[string]any{"title": "x"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = svc.Delete(ctx, domain.CollectionNews, 42)
	if !metrics.has("create_news", true) {
		t.Fatalf("expected successful create metric, got %+v", metrics.calls)
	}
	if !metrics.has("delete_news", false) {
		t.Fatalf("expected failed delete metric, got %+v", metrics.calls)
	}
}

func TestHealthReportsDriverAndRevision(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	if _, err := svc.Create(ctx, domain.CollectionImages, core.Input{Fields: map[string]any{"title": "x"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	h, err := svc.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Driver != "memory" || h.Revision != 1 {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestListFiltersMatchLargeNumbers(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	for _, fields := range []map[string]any{
		{"name": "Villa", "price": float64(1500000), "categoryId": 2500000},
		{"name": "Room", "price": 25.5},
	} {
		if _, err := svc.Create(ctx, domain.CollectionProducts, core.Input{Fields: fields}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	for _, q := range []core.ListQuery{
		{Filters: map[string]string{"price": "1500000"}},
		{Category: "2500000"},
	} {
		list, err := svc.List(ctx, domain.CollectionProducts, q)
		if err != nil {
			t.Fatalf("list %+v: %v", q, err)
		}
		if len(list) != 1 || list[0].String("name") != "Villa" {
			t.Fatalf("query %+v: unexpected result %v", q, list)
		}
	}
	list, err := svc.List(ctx, domain.CollectionProducts, core.ListQuery{Filters: map[string]string{"price": "25.5"}})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected fractional price match, got %v (%v)", list, err)
	}
	list, err = svc.List(ctx, domain.CollectionProducts, core.ListQuery{Filters: map[string]string{"price": "1.5e+06"}})
	if err != nil || len(list) != 0 {
		t.Fatalf("exponent form must not match, got %v (%v)", list, err)
	}
}

func TestUploadsRejectedWhereImagesAreUnsupported(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	contact, err := svc.Create(ctx, domain.CollectionContacts, core.Input{Fields: map[string]any{"name": "Visitor"}})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	uploaded := []string{"/uploads/a.png"}

	_, err = svc.Update(ctx, domain.CollectionContacts, contact.ID(), core.Input{Fields: map[string]any{"status": "read"}, Uploaded: uploaded})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for contact update, got %v", err)
	}
	got, _ := svc.Get(ctx, domain.CollectionContacts, contact.ID())
	if got.String("status") != "new" {
		t.Fatalf("rejected update must not change the record, got %v", got)
	}

	_, err = svc.Update(ctx, domain.CollectionNavigation, 1, core.Input{Uploaded: uploaded})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for navigation update, got %v", err)
	}
	_, err = svc.AddNavigationChild(ctx, 1, core.Input{Fields: map[string]any{"label": "x"}, Uploaded: uploaded})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for navigation child, got %v", err)
	}
}
