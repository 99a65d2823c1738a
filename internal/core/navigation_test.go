package core_test

import (
	"context"
	"testing"

	"sitecontent/internal/core"
	"sitecontent/pkg/domain"
)

func TestNavigationChildrenShareTreeWideIDs(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()

	child, err := svc.AddNavigationChild(ctx, 2, core.Input{Fields: map[string]any{"label": "Lamps", "url": "/products/lamps"}})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	if child.ID() != 6 {
		t.Fatalf("expected child id 6, got %d", child.ID())
	}
	grandchild, err := svc.AddNavigationChild(ctx, child.ID(), core.Input{Fields: map[string]any{"label": "Desk"}})
	if err != nil {
		t.Fatalf("add grandchild: %v", err)
	}
	if grandchild.ID() != 7 || grandchild.String("url") != "/" {
		t.Fatalf("unexpected grandchild %v", grandchild)
	}

	top, err := svc.Create(ctx, domain.CollectionNavigation, core.Input{Fields: map[string]any{
		"label":    "About",
		"children": []any{map[string]any{"label": "History"}},
	}})
	if err != nil {
		t.Fatalf("create top-level: %v", err)
	}
	if top.ID() != 8 {
		t.Fatalf("expected top-level id 8, got %d", top.ID())
	}
	if kids := top.Children(); len(kids) != 1 || kids[0].ID() != 9 {
		t.Fatalf("unexpected nested ids %v", kids)
	}

	got, err := svc.Get(ctx, domain.CollectionNavigation, 7)
	if err != nil {
		t.Fatalf("get nested: %v", err)
	}
	if got.String("label") != "Desk" {
		t.Fatalf("unexpected nested item %v", got)
	}
}

func TestNavigationUpdateAndDeleteChild(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	child, err := svc.AddNavigationChild(ctx, 3, core.Input{Fields: map[string]any{"label": "Install"}})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}

	updated, err := svc.Update(ctx, domain.CollectionNavigation, child.ID(), core.Input{Fields: map[string]any{"label": "Installation"}})
	if err != nil {
		t.Fatalf("update child: %v", err)
	}
	if updated.String("label") != "Installation" || updated.ID() != child.ID() {
		t.Fatalf("unexpected updated child %v", updated)
	}
	parent, err := svc.Get(ctx, domain.CollectionNavigation, 3)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if parent.Revision() != 2 {
		t.Fatalf("expected parent revision bumped to 2, got %d", parent.Revision())
	}

	removed, err := svc.Delete(ctx, domain.CollectionNavigation, child.ID())
	if err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if removed.String("label") != "Installation" {
		t.Fatalf("unexpected removed child %v", removed)
	}
	parent, _ = svc.Get(ctx, domain.CollectionNavigation, 3)
	if len(parent.Children()) != 0 {
		t.Fatalf("child still present %v", parent.Children())
	}
	if _, err := svc.Delete(ctx, domain.CollectionNavigation, child.ID()); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.AddNavigationChild(ctx, 404, core.Input{Fields: map[string]any{"label": "x"}}); !domain.IsNotFound(err) {
		t.Fatalf("expected missing parent error, got %v", err)
	}
}

func TestNavigationListSortedByOrder(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	if _, err := svc.Update(ctx, domain.CollectionNavigation, 1, core.Input{Fields: map[string]any{"order": 99}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	items, err := svc.List(ctx, domain.CollectionNavigation, core.ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items[len(items)-1].ID() != 1 {
		t.Fatalf("expected Home last after reorder, got %v", items)
	}
}
