package core

import (
	"context"

	"sitecontent/pkg/domain"
)

const nav = domain.CollectionNavigation

// GetNavigation returns a top-level item or a child item anywhere in the tree.
func (s *Service) GetNavigation(ctx context.Context, id int) (Record, error) {
	var rec Record
	err := s.view(ctx, "get_navigation", func(v View) error {
		items := v.List(nav)
		if found := findInTree(items, id); found != nil {
			rec = found
			return nil
		}
		return domain.ErrNotFound{Collection: nav, ID: id}
	})
	return rec, err
}

// AddNavigationChild appends a new child item under parentID, which may be a
// top-level item or a child itself. Child ids are unique across the tree.
func (s *Service) AddNavigationChild(ctx context.Context, parentID int, in Input) (Record, error) {
	schema, _ := domain.SchemaFor(nav)
	if err := checkUploads(nav, schema, in); err != nil {
		return nil, err
	}
	child, err := schema.Decode(in.Fields)
	if err != nil {
		return nil, err
	}
	schema.ApplyDefaults(child)

	_, err = s.run(ctx, "add_navigation_child", func(tx Transaction) error {
		items := tx.List(nav)
		topID, ok := locate(items, parentID)
		if !ok {
			return domain.ErrNotFound{Collection: nav, ID: parentID}
		}
		next := nextNavigationID(items)
		child[domain.FieldID] = next
		assignChildIDs(child, next+1)
		_, err := tx.Update(nav, topID, func(top Record) error {
			parent := findInTree([]Record{top}, parentID)
			parent[domain.FieldChildren] = toAny(append(parent.Children(), child))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("navigation child added", "parent", parentID, "id", child.ID())
	return child.Clone(), nil
}

func (s *Service) updateNavigation(ctx context.Context, id int, patch Record, expected int) (Record, error) {
	var updated Record
	_, err := s.run(ctx, "update_navigation", func(tx Transaction) error {
		items := tx.List(nav)
		topID, ok := locate(items, id)
		if !ok {
			return domain.ErrNotFound{Collection: nav, ID: id}
		}
		next := nextNavigationID(items)
		top, err := tx.Update(nav, topID, func(top Record) error {
			if expected > 0 && top.Revision() != expected {
				return domain.ConflictError{Collection: nav, ID: topID, Expected: expected, Actual: top.Revision()}
			}
			target := findInTree([]Record{top}, id)
			merge(target, patch)
			if !isEmpty(patch[domain.FieldChildren]) {
				assignChildIDs(target, next)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = findInTree([]Record{top}, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) deleteNavigation(ctx context.Context, id int) (Record, error) {
	var removed Record
	_, err := s.run(ctx, "delete_navigation", func(tx Transaction) error {
		items := tx.List(nav)
		topID, ok := locate(items, id)
		if !ok {
			return domain.ErrNotFound{Collection: nav, ID: id}
		}
		if topID == id {
			var err error
			removed, err = tx.Delete(nav, id)
			return err
		}
		_, err := tx.Update(nav, topID, func(top Record) error {
			removed = removeFromTree(top, id)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("navigation item deleted", "id", id)
	return removed, nil
}

// locate returns the id of the top-level item containing id (itself when id is top-level).
func locate(items []Record, id int) (int, bool) {
	for _, top := range items {
		if findInTree([]Record{top}, id) != nil {
			return top.ID(), true
		}
	}
	return 0, false
}

// findInTree performs a depth-first linear scan for id. The returned record
// shares storage with items so callers can mutate it in place.
func findInTree(items []Record, id int) Record {
	for _, item := range items {
		if item.ID() == id {
			return item
		}
		if found := findInTree(item.Children(), id); found != nil {
			return found
		}
	}
	return nil
}

func removeFromTree(parent Record, id int) Record {
	children := parent.Children()
	for i, child := range children {
		if child.ID() == id {
			parent[domain.FieldChildren] = toAny(append(children[:i:i], children[i+1:]...))
			return child
		}
		if removed := removeFromTree(child, id); removed != nil {
			parent[domain.FieldChildren] = toAny(children)
			return removed
		}
	}
	return nil
}

func maxTreeID(items []Record) int {
	maxID := 0
	for _, item := range items {
		if id := item.ID(); id > maxID {
			maxID = id
		}
		if id := maxTreeID(item.Children()); id > maxID {
			maxID = id
		}
	}
	return maxID
}

func nextNavigationID(items []Record) int { return maxTreeID(items) + 1 }

// assignChildIDs gives every descendant of rec a fresh id starting at next
// and returns the next unused id.
func assignChildIDs(rec Record, next int) int {
	children := rec.Children()
	for _, child := range children {
		child[domain.FieldID] = next
		next++
		next = assignChildIDs(child, next)
	}
	rec[domain.FieldChildren] = toAny(children)
	return next
}

func toAny(children []Record) []any {
	out := make([]any, len(children))
	for i, child := range children {
		out[i] = map[string]any(child)
	}
	return out
}
