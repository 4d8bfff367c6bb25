package strategy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/codec"
	"github.com/menta2k/image-labeler/pkg/ioresult"
)

var dog = annotation.NewObjectCategory("dog", annotation.Color{R: 200})

func fixedColor() annotation.Color { return annotation.Color{B: 255} }

func runLoad(t *testing.T, plan *LoadPlan) ([]*annotation.ImageAnnotation, int, []ioresult.ErrorInfoEntry) {
	t.Helper()
	var (
		out       []*annotation.ImageAnnotation
		succeeded int
		errs      []ioresult.ErrorInfoEntry
	)
	for _, item := range plan.Items {
		o := item.Run()
		out = append(out, o.Annotations...)
		succeeded += o.Succeeded
		errs = append(errs, o.Errors...)
	}
	return out, succeeded, errs
}

func runSave(t *testing.T, plan *SavePlan) (int, []ioresult.ErrorInfoEntry) {
	t.Helper()
	var (
		succeeded int
		errs      []ioresult.ErrorInfoEntry
	)
	for _, item := range plan.Items {
		o := item.Run()
		succeeded += o.Succeeded
		errs = append(errs, o.Errors...)
	}
	return succeeded, errs
}

func metaData(name string) *annotation.ImageMetaData {
	return &annotation.ImageMetaData{FileName: name, FolderName: "images", Width: 200, Height: 100, Depth: 3}
}

func lookupAll(name string) (*annotation.ImageMetaData, error) {
	return metaData(name), nil
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseFormatType(t *testing.T) {
	for in, want := range map[string]FormatType{
		"xml": FormatXML, "PVOC": FormatXML, " yolo ": FormatYOLO, "json": FormatJSON, "CSV": FormatCSV,
	} {
		got, err := ParseFormatType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormatType("coco")
	assert.Error(t, err)
}

func TestForFormat(t *testing.T) {
	for _, ft := range Formats {
		s, err := ForFormat(ft)
		require.NoError(t, err)
		assert.Equal(t, ft, s.Format())
	}
	_, err := ForFormat("coco")
	assert.Error(t, err)
}

func TestXMLImportWithCorruptFile(t *testing.T) {
	dir := t.TempDir()
	valid, err := codec.EncodeXML(annotation.NewImageAnnotation(metaData("a.png"),
		annotation.NewBox(dog, 0.1, 0.1, 0.5, 0.5)), 200, 100)
	require.NoError(t, err)
	writeTestFile(t, filepath.Join(dir, "a.xml"), string(valid))
	writeTestFile(t, filepath.Join(dir, "b.xml"), "<annotation><size>")
	writeTestFile(t, filepath.Join(dir, "unrelated.xml"), string(valid))

	s, err := ForFormat(FormatXML)
	require.NoError(t, err)
	plan, err := s.PlanLoad(LoadRequest{
		Root:       dir,
		Importable: []string{"a.png", "b.png"},
		Known:      map[string]*annotation.ObjectCategory{"dog": dog},
		NewColor:   fixedColor,
	})
	require.NoError(t, err)
	require.Len(t, plan.Items, 2)

	annotations, succeeded, errs := runLoad(t, plan)
	assert.Equal(t, 1, succeeded)
	require.Len(t, errs, 1)
	assert.Equal(t, "b.xml", errs[0].SourceName)
	require.Len(t, annotations, 1)
	assert.Equal(t, "a.png", annotations[0].FileName())
	assert.Same(t, dog, annotations[0].Shapes[0].Category)
}

func TestXMLImportForeignImage(t *testing.T) {
	dir := t.TempDir()
	data, err := codec.EncodeXML(annotation.NewImageAnnotation(metaData("other.png"),
		annotation.NewBox(dog, 0.1, 0.1, 0.5, 0.5)), 200, 100)
	require.NoError(t, err)
	writeTestFile(t, filepath.Join(dir, "a.xml"), string(data))

	s, _ := ForFormat(FormatXML)
	plan, err := s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png"}})
	require.NoError(t, err)

	annotations, succeeded, errs := runLoad(t, plan)
	assert.Empty(t, annotations)
	assert.Zero(t, succeeded)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].ErrorDescription, "other.png")
}

func TestXMLImportWithoutSizeUsesImageMetaData(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.xml"), `<annotation><filename>a.png</filename>
		<object><name>dog</name><bndbox><xmin>20</xmin><ymin>10</ymin><xmax>100</xmax><ymax>50</ymax></bndbox></object></annotation>`)
	s, _ := ForFormat(FormatXML)

	var looked []string
	plan, err := s.PlanLoad(LoadRequest{
		Root:       dir,
		Importable: []string{"a.png"},
		Known:      map[string]*annotation.ObjectCategory{"dog": dog},
		MetaData: func(name string) (*annotation.ImageMetaData, error) {
			looked = append(looked, name)
			return metaData(name), nil
		},
	})
	require.NoError(t, err)
	annotations, succeeded, errs := runLoad(t, plan)
	require.Empty(t, errs)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []string{"a.png"}, looked)
	require.Len(t, annotations, 1)
	assert.Equal(t, 200.0, annotations[0].MetaData.Width)
	assert.True(t, annotations[0].Shapes[0].Equal(annotation.NewBox(dog, 0.1, 0.1, 0.5, 0.5)))

	plan, err = s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png"}})
	require.NoError(t, err)
	_, succeeded, errs = runLoad(t, plan)
	assert.Zero(t, succeeded)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].ErrorDescription, "missing image size")

	plan, err = s.PlanLoad(LoadRequest{
		Root:       dir,
		Importable: []string{"a.png"},
		MetaData: func(string) (*annotation.ImageMetaData, error) {
			return nil, errors.New("corrupt image")
		},
	})
	require.NoError(t, err)
	_, _, errs = runLoad(t, plan)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].ErrorDescription, "corrupt image")
}

func TestXMLImportWithSizeSkipsImageMetaData(t *testing.T) {
	dir := t.TempDir()
	data, err := codec.EncodeXML(annotation.NewImageAnnotation(metaData("a.png"),
		annotation.NewBox(dog, 0.1, 0.1, 0.5, 0.5)), 200, 100)
	require.NoError(t, err)
	writeTestFile(t, filepath.Join(dir, "a.xml"), string(data))

	s, _ := ForFormat(FormatXML)
	plan, err := s.PlanLoad(LoadRequest{
		Root:       dir,
		Importable: []string{"a.png"},
		MetaData: func(name string) (*annotation.ImageMetaData, error) {
			t.Errorf("unexpected metadata lookup for %s", name)
			return nil, codec.ErrSkipImage
		},
	})
	require.NoError(t, err)
	_, succeeded, errs := runLoad(t, plan)
	assert.Empty(t, errs)
	assert.Equal(t, 1, succeeded)
}

func TestLoadMissingRootIsFatal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	for _, ft := range Formats {
		s, _ := ForFormat(ft)
		_, err := s.PlanLoad(LoadRequest{Root: missing, CategoryNames: []string{"dog"}})
		assert.True(t, IsFatal(err), "format %s", ft)
	}
}

func TestSaveMissingRootIsFatal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	for _, ft := range Formats {
		s, _ := ForFormat(ft)
		_, err := s.PlanSave(SaveRequest{Root: missing})
		assert.True(t, IsFatal(err), "format %s", ft)
		var fatal *FatalSetupError
		require.True(t, errors.As(err, &fatal))
		assert.Equal(t, missing, fatal.Path)
	}
}

func TestJSONSaveSkipsEmptyAnnotations(t *testing.T) {
	dir := t.TempDir()
	s, _ := ForFormat(FormatJSON)
	plan, err := s.PlanSave(SaveRequest{
		Root: dir,
		Annotations: []*annotation.ImageAnnotation{
			annotation.NewImageAnnotation(metaData("a.png"), annotation.NewBox(dog, 0.1, 0.1, 0.2, 0.2)),
			annotation.NewImageAnnotation(metaData("empty.png")),
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)

	succeeded, errs := runSave(t, plan)
	assert.Equal(t, 1, succeeded)
	assert.Empty(t, errs)
	assert.FileExists(t, filepath.Join(dir, "a.json"))
	assert.NoFileExists(t, filepath.Join(dir, "empty.json"))
}

func TestJSONRoundTripThroughDirectory(t *testing.T) {
	dir := t.TempDir()
	original := annotation.NewImageAnnotation(annotation.NewPlaceholderMetaData("a.png"),
		annotation.NewBox(dog, 0.1, 0.2, 0.3, 0.4).WithParts(annotation.NewBox(dog, 0.15, 0.25, 0.2, 0.3)))

	s, _ := ForFormat(FormatJSON)
	savePlan, err := s.PlanSave(SaveRequest{Root: dir, Annotations: []*annotation.ImageAnnotation{original}, MetaData: lookupAll})
	require.NoError(t, err)
	succeeded, errs := runSave(t, savePlan)
	require.Empty(t, errs)
	require.Equal(t, 1, succeeded)
	assert.False(t, original.MetaData.HasDetails(), "saving must not modify the annotation")

	loadPlan, err := s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png"}, Known: map[string]*annotation.ObjectCategory{"dog": dog}})
	require.NoError(t, err)
	annotations, _, errs := runLoad(t, loadPlan)
	require.Empty(t, errs)
	require.Len(t, annotations, 1)
	assert.True(t, annotation.EqualShapes(original.Shapes, annotations[0].Shapes))
	assert.Equal(t, 200.0, annotations[0].MetaData.Width)
}

func TestSaveWithoutDimensions(t *testing.T) {
	dir := t.TempDir()
	s, _ := ForFormat(FormatXML)
	plan, err := s.PlanSave(SaveRequest{
		Root: dir,
		Annotations: []*annotation.ImageAnnotation{
			annotation.NewImageAnnotation(annotation.NewPlaceholderMetaData("a.png"), annotation.NewBox(dog, 0.1, 0.1, 0.2, 0.2)),
		},
	})
	require.NoError(t, err)
	succeeded, errs := runSave(t, plan)
	assert.Zero(t, succeeded)
	require.Len(t, errs, 1)
	assert.Equal(t, "a.png", errs[0].SourceName)
}

func TestYOLOSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cat := annotation.NewObjectCategory("cat", annotation.Color{G: 200})
	polygon := annotation.NewPolygon(cat, []annotation.Point{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.1}, {X: 0.2, Y: 0.2}})

	s, _ := ForFormat(FormatYOLO)
	plan, err := s.PlanSave(SaveRequest{
		Root:       dir,
		Categories: []*annotation.ObjectCategory{dog, cat},
		Annotations: []*annotation.ImageAnnotation{
			annotation.NewImageAnnotation(metaData("a.png"), annotation.NewBox(cat, 0.25, 0.25, 0.75, 0.75)),
			annotation.NewImageAnnotation(metaData("b.png"), polygon),
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Items, 3)

	succeeded, errs := runSave(t, plan)
	assert.Equal(t, 1, succeeded)
	require.Len(t, errs, 1)
	assert.Equal(t, "b.png", errs[0].SourceName)

	names, err := os.ReadFile(filepath.Join(dir, codec.YOLOCategoryFile))
	require.NoError(t, err)
	assert.Equal(t, "dog\ncat\n", string(names))
	assert.NoFileExists(t, filepath.Join(dir, "b.txt"))

	loadPlan, err := s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png", "b.png"}})
	require.NoError(t, err)
	annotations, loaded, errs := runLoad(t, loadPlan)
	require.Empty(t, errs)
	assert.Equal(t, 1, loaded)
	require.Len(t, annotations, 1)
	assert.Equal(t, "cat", annotations[0].Shapes[0].CategoryName())
	assert.False(t, annotations[0].MetaData.HasDetails())
}

func TestYOLOLoadCategorySources(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.txt"), "0 0.5 0.5 0.2 0.2\n")
	s, _ := ForFormat(FormatYOLO)

	_, err := s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png"}})
	assert.True(t, IsFatal(err))

	plan, err := s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png"}, CategoryNames: []string{"bird"}})
	require.NoError(t, err)
	annotations, _, errs := runLoad(t, plan)
	require.Empty(t, errs)
	assert.Equal(t, "bird", annotations[0].Shapes[0].CategoryName())

	writeTestFile(t, filepath.Join(dir, codec.YOLOCategoryFile), "\n")
	_, err = s.PlanLoad(LoadRequest{Root: dir, Importable: []string{"a.png"}, CategoryNames: []string{"bird"}})
	assert.True(t, IsFatal(err))
}

func TestCSVPolygonExport(t *testing.T) {
	dir := t.TempDir()
	s, _ := ForFormat(FormatCSV)
	plan, err := s.PlanSave(SaveRequest{
		Root: dir,
		Annotations: []*annotation.ImageAnnotation{annotation.NewImageAnnotation(metaData("a.png"),
			annotation.NewPolygon(dog, []annotation.Point{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.1}, {X: 0.2, Y: 0.2}}))},
	})
	require.NoError(t, err)
	succeeded, errs := runSave(t, plan)
	assert.Zero(t, succeeded)
	assert.Len(t, errs, 1)

	data, err := os.ReadFile(filepath.Join(dir, codec.CSVFileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1)
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, _ := ForFormat(FormatCSV)
	plan, err := s.PlanSave(SaveRequest{
		Root: dir,
		Annotations: []*annotation.ImageAnnotation{
			annotation.NewImageAnnotation(metaData("a.png"), annotation.NewBox(dog, 0.1, 0.1, 0.5, 0.5)),
			annotation.NewImageAnnotation(metaData("b.png"), annotation.NewBox(dog, 0.2, 0.2, 0.4, 0.4)),
		},
	})
	require.NoError(t, err)
	succeeded, errs := runSave(t, plan)
	require.Empty(t, errs)
	assert.Equal(t, 2, succeeded)

	loadPlan, err := s.PlanLoad(LoadRequest{
		Root:       filepath.Join(dir, codec.CSVFileName),
		Importable: []string{"b.png"},
		MetaData:   lookupAll,
	})
	require.NoError(t, err)
	annotations, loaded, errs := runLoad(t, loadPlan)
	require.Empty(t, errs)
	assert.Equal(t, 1, loaded)
	require.Len(t, annotations, 1)
	assert.Equal(t, "b.png", annotations[0].FileName())
	assert.InDelta(t, 0.2, annotations[0].Shapes[0].Box.XMin, 1e-9)
}

func TestCSVLoadMissingFileIsFatal(t *testing.T) {
	s, _ := ForFormat(FormatCSV)
	_, err := s.PlanLoad(LoadRequest{Root: t.TempDir()})
	assert.True(t, IsFatal(err))
}
