package model

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/ioresult"
)

// UpdateBoundingShapeDataAtIndex replaces the shapes of the image at index.
// An empty list removes the annotation. Shapes equal to the stored ones
// leave the model untouched, so the saved state is kept. Every category must
// be registered; shapes are copied and bound to the registered instances.
func (m *Model) UpdateBoundingShapeDataAtIndex(index int, shapes []*annotation.Shape) error {
	return m.mutate(func(c *changes) error {
		name, err := m.fileNameAt(index)
		if err != nil {
			return err
		}

		copied := make([]*annotation.Shape, len(shapes))
		for i, s := range shapes {
			copied[i] = s.Clone()
			var missing string
			copied[i].Walk(func(shape *annotation.Shape, _ int) {
				canonical, ok := m.categories[shape.CategoryName()]
				if !ok {
					if missing == "" {
						missing = shape.CategoryName()
					}
					return
				}
				shape.Category = canonical
			})
			if missing != "" {
				return fmt.Errorf("%w: %q", ErrUnknownCategory, missing)
			}
		}

		existing := m.annotations[name]
		if len(copied) == 0 {
			if existing == nil {
				return nil
			}
			m.addCounts(annotation.CountShapes(existing.Shapes), -1, c)
			delete(m.annotations, name)
			c.add(ChangeAnnotations)
			m.markDirty(c)
			return nil
		}

		if existing != nil {
			if annotation.EqualShapes(existing.Shapes, copied) {
				return nil
			}
			m.addCounts(annotation.CountShapes(existing.Shapes), -1, c)
			existing.Shapes = copied
		} else {
			m.annotations[name] = annotation.NewImageAnnotation(m.metaDataLocked(name), copied...)
		}
		m.addCounts(annotation.CountShapes(copied), 1, c)
		c.add(ChangeAnnotations)
		m.markDirty(c)
		return nil
	})
}

// MergeImageAnnotationData merges a loaded or predicted batch. Incoming
// shapes are copied and their categories bound by name to registered ones;
// unknown categories are registered. A new annotation is attached with the
// canonical metadata of its image; an existing one gets the incoming shapes
// appended. Annotations of images that are not loaded are ignored.
//
// An import onto a model without annotations keeps the saved state; any
// other merge marks the model dirty.
func (m *Model) MergeImageAnnotationData(data *annotation.ImageAnnotationData, op ioresult.OperationType) int {
	merged := 0
	_ = m.mutate(func(c *changes) error {
		if data.Empty() {
			return nil
		}
		wasEmpty := len(m.annotations) == 0

		newNames := make([]string, 0, len(data.Categories))
		for name := range data.Categories {
			if _, ok := m.categories[name]; !ok {
				newNames = append(newNames, name)
			}
		}
		slices.Sort(newNames)
		for _, name := range newNames {
			m.categories[name] = data.Categories[name]
			m.categoryOrder = append(m.categoryOrder, name)
			m.counts[name] = 0
			c.add(ChangeCategories, ChangeCounts)
		}

		for _, a := range data.Annotations {
			name := a.FileName()
			if _, ok := m.byName[name]; !ok {
				continue
			}
			shapes := make([]*annotation.Shape, len(a.Shapes))
			for i, s := range a.Shapes {
				shapes[i] = s.Clone()
				shapes[i].Walk(func(shape *annotation.Shape, _ int) {
					if canonical, ok := m.categories[shape.CategoryName()]; ok {
						shape.Category = canonical
					}
				})
			}

			md := m.metaDataLocked(name)
			if !md.HasDetails() && a.MetaData.HasDetails() {
				md.CopyDetailsFrom(a.MetaData)
			}

			if existing, ok := m.annotations[name]; ok {
				existing.Shapes = append(existing.Shapes, shapes...)
			} else {
				m.annotations[name] = annotation.NewImageAnnotation(md, shapes...)
			}
			m.addCounts(annotation.CountShapes(shapes), 1, c)
			merged++
		}
		if merged == 0 {
			return nil
		}
		c.add(ChangeAnnotations)
		if op != ioresult.OpImport || !wasEmpty {
			m.markDirty(c)
		}
		return nil
	})
	return merged
}

// Annotation returns a copy of the annotation of fileName.
func (m *Model) Annotation(fileName string) (*annotation.ImageAnnotation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.annotations[fileName]
	if !ok {
		return nil, false
	}
	return cloneAnnotation(a), true
}

// Annotations returns copies of all annotations in image order. The copies
// are safe to hand to background workers.
func (m *Model) Annotations() []*annotation.ImageAnnotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*annotation.ImageAnnotation, 0, len(m.annotations))
	for _, p := range m.images {
		if a, ok := m.annotations[filepath.Base(p)]; ok {
			out = append(out, cloneAnnotation(a))
		}
	}
	return out
}

func cloneAnnotation(a *annotation.ImageAnnotation) *annotation.ImageAnnotation {
	md := *a.MetaData
	shapes := make([]*annotation.Shape, len(a.Shapes))
	for i, s := range a.Shapes {
		shapes[i] = s.Clone()
	}
	return annotation.NewImageAnnotation(&md, shapes...)
}
