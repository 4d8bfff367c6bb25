// Package model holds the authoritative annotation state of a labeling
// session: the image list, per-image metadata and annotations, categories
// with their usage counts, and whether everything has been saved.
//
// All methods are safe for concurrent use. Listeners registered with
// OnChange run after the internal lock has been released.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/processing"
)

var (
	ErrIndexOutOfRange = errors.New("image index out of range")
	ErrUnknownCategory = errors.New("unknown category")
	ErrCategoryExists  = errors.New("category already exists")
	ErrCategoryInUse   = errors.New("category is in use")
	ErrNoImages        = errors.New("no images loaded")
)

// ChangeKind identifies what part of the model changed.
type ChangeKind int

const (
	ChangeCurrentIndex ChangeKind = iota
	ChangeSaved
	ChangeCategories
	ChangeCounts
	ChangeAnnotations
	ChangeImages
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCurrentIndex:
		return "current-index"
	case ChangeSaved:
		return "saved"
	case ChangeCategories:
		return "categories"
	case ChangeCounts:
		return "counts"
	case ChangeAnnotations:
		return "annotations"
	case ChangeImages:
		return "images"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ChangeEvent is delivered to listeners after a mutation.
type ChangeEvent struct {
	Kind ChangeKind
}

// Listener receives change events.
type Listener func(ChangeEvent)

// Model is the single owner of annotation state.
type Model struct {
	mu     sync.Mutex
	reader processing.DimensionReader

	images  []string
	byName  map[string]int
	current int

	metaData      map[string]*annotation.ImageMetaData
	annotations   map[string]*annotation.ImageAnnotation
	categories    map[string]*annotation.ObjectCategory
	categoryOrder []string
	counts        map[string]int

	saved     bool
	listeners []Listener
}

// New returns an empty, saved model. reader computes missing image
// dimensions; it may be nil when dimensions are always supplied.
func New(reader processing.DimensionReader) *Model {
	m := &Model{reader: reader}
	m.reset()
	return m
}

func (m *Model) reset() {
	m.images = nil
	m.byName = make(map[string]int)
	m.current = -1
	m.metaData = make(map[string]*annotation.ImageMetaData)
	m.annotations = make(map[string]*annotation.ImageAnnotation)
	m.categories = make(map[string]*annotation.ObjectCategory)
	m.categoryOrder = nil
	m.counts = make(map[string]int)
	m.saved = true
}

type changes struct {
	kinds []ChangeKind
}

func (c *changes) add(kinds ...ChangeKind) {
	for _, k := range kinds {
		if !slices.Contains(c.kinds, k) {
			c.kinds = append(c.kinds, k)
		}
	}
}

// mutate runs fn under the lock and notifies listeners afterwards.
func (m *Model) mutate(fn func(c *changes) error) error {
	var c changes
	m.mu.Lock()
	err := fn(&c)
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, k := range c.kinds {
		for _, l := range listeners {
			l(ChangeEvent{Kind: k})
		}
	}
	return err
}

func (m *Model) markDirty(c *changes) {
	if m.saved {
		m.saved = false
		c.add(ChangeSaved)
	}
}

// OnChange registers a listener.
func (m *Model) OnChange(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// SetImages replaces the image list and clears the metadata cache.
// Annotations of files that remain in the list are kept and bound to fresh
// placeholder metadata; annotations of dropped files are removed along with
// their counts. Files sharing a base name with an earlier file are ignored.
func (m *Model) SetImages(paths []string) {
	_ = m.mutate(func(c *changes) error {
		m.images = nil
		m.byName = make(map[string]int)
		m.current = -1
		m.metaData = make(map[string]*annotation.ImageMetaData)
		for _, p := range paths {
			name := filepath.Base(p)
			if _, dup := m.byName[name]; dup {
				continue
			}
			m.byName[name] = len(m.images)
			m.images = append(m.images, p)
		}
		if len(m.images) > 0 {
			m.current = 0
		}
		c.add(ChangeImages, ChangeCurrentIndex)

		for name, a := range m.annotations {
			if _, ok := m.byName[name]; !ok {
				m.addCounts(annotation.CountShapes(a.Shapes), -1, c)
				delete(m.annotations, name)
				c.add(ChangeAnnotations)
				continue
			}
			a.MetaData = m.metaDataLocked(name)
		}
		return nil
	})
}

// Clear drops all state, categories included.
func (m *Model) Clear() {
	_ = m.mutate(func(c *changes) error {
		m.reset()
		c.add(ChangeImages, ChangeAnnotations, ChangeCategories, ChangeCounts, ChangeCurrentIndex, ChangeSaved)
		return nil
	})
}

// ImageFiles returns the image paths in order.
func (m *Model) ImageFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.images)
}

// FileNames returns the base names of the images in order.
func (m *Model) FileNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.images))
	for i, p := range m.images {
		out[i] = filepath.Base(p)
	}
	return out
}

// CurrentIndex returns the selected image index, or -1 without images.
func (m *Model) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrentIndex selects an image.
func (m *Model) SetCurrentIndex(i int) error {
	return m.mutate(func(c *changes) error {
		if i < 0 || i >= len(m.images) {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
		}
		if m.current != i {
			m.current = i
			c.add(ChangeCurrentIndex)
		}
		return nil
	})
}

// CurrentFile returns the path of the selected image.
func (m *Model) CurrentFile() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.images) == 0 {
		return "", ErrNoImages
	}
	return m.images[m.current], nil
}

// IsSaved reports whether the state matches the last import or export.
func (m *Model) IsSaved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

// MarkSaved records that the state has been persisted.
func (m *Model) MarkSaved() {
	_ = m.mutate(func(c *changes) error {
		if !m.saved {
			m.saved = true
			c.add(ChangeSaved)
		}
		return nil
	})
}

func (m *Model) fileNameAt(i int) (string, error) {
	if i < 0 || i >= len(m.images) {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return filepath.Base(m.images[i]), nil
}

func (m *Model) pathOf(fileName string) (string, bool) {
	i, ok := m.byName[fileName]
	if !ok {
		return "", false
	}
	return m.images[i], true
}

// metaDataLocked returns the canonical metadata of fileName, registering a
// placeholder when none is known.
func (m *Model) metaDataLocked(fileName string) *annotation.ImageMetaData {
	md, ok := m.metaData[fileName]
	if !ok {
		md = annotation.NewPlaceholderMetaData(fileName)
		m.metaData[fileName] = md
	}
	return md
}

// addCounts adjusts the shape count of registered categories. Counts never
// drop below zero and keys are only added or removed with their category.
func (m *Model) addCounts(delta map[string]int, sign int, c *changes) {
	for name, n := range delta {
		if n == 0 {
			continue
		}
		if _, ok := m.counts[name]; !ok {
			continue
		}
		m.counts[name] = max(0, m.counts[name]+sign*n)
		c.add(ChangeCounts)
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("category name must not be empty")
	}
	return name, nil
}
