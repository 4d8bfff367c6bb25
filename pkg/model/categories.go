package model

import (
	"fmt"
	"maps"
	"slices"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

// AddCategory registers a new category.
func (m *Model) AddCategory(name string, color annotation.Color) (*annotation.ObjectCategory, error) {
	var added *annotation.ObjectCategory
	err := m.mutate(func(c *changes) error {
		name, err := normalizeName(name)
		if err != nil {
			return err
		}
		if _, ok := m.categories[name]; ok {
			return fmt.Errorf("%w: %q", ErrCategoryExists, name)
		}
		added = annotation.NewObjectCategory(name, color)
		m.categories[name] = added
		m.categoryOrder = append(m.categoryOrder, name)
		m.counts[name] = 0
		c.add(ChangeCategories, ChangeCounts)
		return nil
	})
	return added, err
}

// RemoveCategory unregisters a category no shape uses.
func (m *Model) RemoveCategory(name string) error {
	return m.mutate(func(c *changes) error {
		if _, ok := m.categories[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, name)
		}
		if m.counts[name] > 0 {
			return fmt.Errorf("%w: %q is used by %d shapes", ErrCategoryInUse, name, m.counts[name])
		}
		delete(m.categories, name)
		delete(m.counts, name)
		m.categoryOrder = slices.DeleteFunc(m.categoryOrder, func(n string) bool { return n == name })
		c.add(ChangeCategories, ChangeCounts)
		return nil
	})
}

// RenameCategory renames a category in place, so every shape using it sees
// the new name. Counts move with it.
func (m *Model) RenameCategory(oldName, newName string) error {
	return m.mutate(func(c *changes) error {
		newName, err := normalizeName(newName)
		if err != nil {
			return err
		}
		cat, ok := m.categories[oldName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, oldName)
		}
		if oldName == newName {
			return nil
		}
		if _, ok := m.categories[newName]; ok {
			return fmt.Errorf("%w: %q", ErrCategoryExists, newName)
		}

		cat.Name = newName
		delete(m.categories, oldName)
		m.categories[newName] = cat
		if i := slices.Index(m.categoryOrder, oldName); i >= 0 {
			m.categoryOrder[i] = newName
		}
		n := m.counts[oldName]
		delete(m.counts, oldName)
		m.counts[newName] = n
		c.add(ChangeCategories, ChangeCounts)
		if n > 0 {
			m.markDirty(c)
		}
		return nil
	})
}

// Categories returns the registered categories in registration order.
func (m *Model) Categories() []*annotation.ObjectCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*annotation.ObjectCategory, 0, len(m.categoryOrder))
	for _, name := range m.categoryOrder {
		out = append(out, m.categories[name])
	}
	return out
}

// CategoryNames returns the registered category names in registration order.
func (m *Model) CategoryNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.categoryOrder)
}

// CategoryMap returns a snapshot of the name to category map, suitable as
// the known categories of an import or prediction.
func (m *Model) CategoryMap() map[string]*annotation.ObjectCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.categories)
}

// CategoryCounts returns a snapshot of the shape count per category name.
// Its keys are exactly the registered category names.
func (m *Model) CategoryCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.counts)
}
