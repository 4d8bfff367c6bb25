package annotation

import "path/filepath"

// ImageMetaData describes an image file. A placeholder only knows the file
// name; dimensions are filled in once the image has been read.
type ImageMetaData struct {
	FileName   string  `json:"fileName"`
	FolderName string  `json:"folderName,omitempty"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Depth      int     `json:"depth"`
}

// NewPlaceholderMetaData creates metadata that carries only a file name.
func NewPlaceholderMetaData(fileName string) *ImageMetaData {
	return &ImageMetaData{FileName: fileName}
}

// NewImageMetaData creates metadata for the image at path.
func NewImageMetaData(path string, width, height float64, depth int) *ImageMetaData {
	return &ImageMetaData{
		FileName:   filepath.Base(path),
		FolderName: filepath.Base(filepath.Dir(path)),
		Width:      width,
		Height:     height,
		Depth:      depth,
	}
}

// HasDetails reports whether the dimensions are known.
func (m *ImageMetaData) HasDetails() bool {
	return m != nil && m.Width > 0 && m.Height > 0
}

// CopyDetailsFrom fills dimensions and folder from other, keeping identity.
func (m *ImageMetaData) CopyDetailsFrom(other *ImageMetaData) {
	if other == nil {
		return
	}
	if other.FolderName != "" {
		m.FolderName = other.FolderName
	}
	m.Width = other.Width
	m.Height = other.Height
	m.Depth = other.Depth
}

// ImageAnnotation is the ordered list of shapes drawn on one image.
type ImageAnnotation struct {
	MetaData *ImageMetaData
	Shapes   []*Shape
}

// NewImageAnnotation creates an annotation for the image described by md.
func NewImageAnnotation(md *ImageMetaData, shapes ...*Shape) *ImageAnnotation {
	return &ImageAnnotation{MetaData: md, Shapes: shapes}
}

// FileName returns the annotated image's file name.
func (a *ImageAnnotation) FileName() string {
	if a.MetaData == nil {
		return ""
	}
	return a.MetaData.FileName
}

// ShapeCount returns the number of shapes including nested parts.
func (a *ImageAnnotation) ShapeCount() int {
	n := 0
	for _, s := range a.Shapes {
		s.Walk(func(*Shape, int) { n++ })
	}
	return n
}

// ImageAnnotationData is the unit exchanged between persistence and the model.
type ImageAnnotationData struct {
	Annotations    []*ImageAnnotation
	CategoryCounts map[string]int
	Categories     map[string]*ObjectCategory
}

// NewImageAnnotationData aggregates annotations into a single value. Shapes
// whose category shares a name with an already seen category are rebound to
// the first instance so the aggregate holds one category per name. Counts
// include nested parts. Annotations without shapes are dropped.
func NewImageAnnotationData(annotations []*ImageAnnotation) *ImageAnnotationData {
	data := &ImageAnnotationData{
		Annotations:    make([]*ImageAnnotation, 0, len(annotations)),
		CategoryCounts: make(map[string]int),
		Categories:     make(map[string]*ObjectCategory),
	}
	for _, a := range annotations {
		if a == nil || len(a.Shapes) == 0 {
			continue
		}
		data.Annotations = append(data.Annotations, a)
		for _, s := range a.Shapes {
			s.Walk(func(shape *Shape, _ int) {
				if shape.Category == nil {
					return
				}
				name := shape.Category.Name
				if existing, ok := data.Categories[name]; ok {
					shape.Category = existing
				} else {
					data.Categories[name] = shape.Category
				}
				data.CategoryCounts[name]++
			})
		}
	}
	return data
}

// Empty reports whether the aggregate carries no annotations.
func (d *ImageAnnotationData) Empty() bool {
	return d == nil || len(d.Annotations) == 0
}

// CountShapes returns the per-category shape counts of shapes, nested parts included.
func CountShapes(shapes []*Shape) map[string]int {
	counts := make(map[string]int)
	for _, s := range shapes {
		s.Walk(func(shape *Shape, _ int) {
			if shape.Category != nil {
				counts[shape.Category.Name]++
			}
		})
	}
	return counts
}
