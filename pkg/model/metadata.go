package model

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

// MetaData returns a copy of the metadata known for fileName.
func (m *Model) MetaData(fileName string) (annotation.ImageMetaData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.metaData[fileName]
	if !ok {
		return annotation.ImageMetaData{}, false
	}
	return *md, true
}

// PutMetaData stores metadata read elsewhere, typically by a metadata load.
// Existing metadata keeps its identity and receives the new details.
func (m *Model) PutMetaData(md *annotation.ImageMetaData) {
	if md == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.metaData[md.FileName]; ok {
		existing.CopyDetailsFrom(md)
		return
	}
	copied := *md
	m.metaData[md.FileName] = &copied
}

// AttachIfPlaceholder copies the details of md into the canonical metadata
// of fileName when that metadata has no dimensions yet. It reports whether
// anything was attached.
func (m *Model) AttachIfPlaceholder(fileName string, md *annotation.ImageMetaData) bool {
	if !md.HasDetails() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	canonical := m.metaDataLocked(fileName)
	if canonical.HasDetails() {
		return false
	}
	canonical.CopyDetailsFrom(md)
	return true
}

// GetOrComputeMetaData returns a copy of the metadata of fileName, reading
// the image when its dimensions are unknown. A read result is memoized only
// when no metadata is registered yet; a placeholder already referenced by an
// annotation is left alone until AttachIfPlaceholder is called.
func (m *Model) GetOrComputeMetaData(fileName string) (annotation.ImageMetaData, error) {
	m.mu.Lock()
	path, ok := m.pathOf(fileName)
	if !ok {
		m.mu.Unlock()
		return annotation.ImageMetaData{}, fmt.Errorf("image %s is not loaded", fileName)
	}
	if md, ok := m.metaData[fileName]; ok && md.HasDetails() {
		copied := *md
		m.mu.Unlock()
		return copied, nil
	}
	m.mu.Unlock()

	if m.reader == nil {
		return annotation.ImageMetaData{}, errors.New("no dimension reader configured")
	}
	read, err := m.reader.ReadDimensions(path)
	if err != nil {
		return annotation.ImageMetaData{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.metaData[fileName]; !ok {
		copied := *read
		m.metaData[fileName] = &copied
	}
	return *read, nil
}

// GetOrCreateCurrentImageMetaData returns the metadata of the selected image
// and backfills it into the image's annotation when that still holds a
// placeholder.
func (m *Model) GetOrCreateCurrentImageMetaData() (annotation.ImageMetaData, error) {
	path, err := m.CurrentFile()
	if err != nil {
		return annotation.ImageMetaData{}, err
	}
	name := filepath.Base(path)
	md, err := m.GetOrComputeMetaData(name)
	if err != nil {
		return annotation.ImageMetaData{}, err
	}
	m.AttachIfPlaceholder(name, &md)
	return md, nil
}
