package annotation

import "strings"

// CategoryResolver maps category names found in a file to category objects.
// Known categories are shared and never mutated; categories created on the
// fly are local to the resolver, so each worker owns one and no locking is
// needed while decoding.
type CategoryResolver struct {
	known    map[string]*ObjectCategory
	created  map[string]*ObjectCategory
	newColor ColorGenerator
}

// NewCategoryResolver returns a resolver over a read-only snapshot of known
// categories. newColor may be nil, in which case RandomColor is used.
func NewCategoryResolver(known map[string]*ObjectCategory, newColor ColorGenerator) *CategoryResolver {
	if newColor == nil {
		newColor = RandomColor
	}
	return &CategoryResolver{
		known:    known,
		created:  make(map[string]*ObjectCategory),
		newColor: newColor,
	}
}

// Resolve returns the category called name, creating it with a fresh color
// when neither known nor created before. Surrounding whitespace is ignored.
func (r *CategoryResolver) Resolve(name string) *ObjectCategory {
	name = strings.TrimSpace(name)
	if c, ok := r.known[name]; ok {
		return c
	}
	if c, ok := r.created[name]; ok {
		return c
	}
	c := NewObjectCategory(name, r.newColor())
	r.created[name] = c
	return c
}

// ResolveWithColor is like Resolve but uses color for a newly created category.
func (r *CategoryResolver) ResolveWithColor(name string, color Color) *ObjectCategory {
	name = strings.TrimSpace(name)
	if c, ok := r.known[name]; ok {
		return c
	}
	if c, ok := r.created[name]; ok {
		return c
	}
	c := NewObjectCategory(name, color)
	r.created[name] = c
	return c
}

// Created returns the categories this resolver created.
func (r *CategoryResolver) Created() map[string]*ObjectCategory {
	return r.created
}
