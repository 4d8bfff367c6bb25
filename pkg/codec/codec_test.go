package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

var (
	red   = annotation.Color{R: 255}
	green = annotation.Color{G: 255}
)

func newResolver(known ...*annotation.ObjectCategory) *annotation.CategoryResolver {
	m := make(map[string]*annotation.ObjectCategory, len(known))
	for _, c := range known {
		m[c.Name] = c
	}
	return annotation.NewCategoryResolver(m, func() annotation.Color { return green })
}

func boxAnnotation(cat *annotation.ObjectCategory) *annotation.ImageAnnotation {
	md := &annotation.ImageMetaData{FileName: "sample.png", FolderName: "images", Width: 640, Height: 480, Depth: 3}
	return annotation.NewImageAnnotation(md,
		annotation.NewBox(cat, 0.1, 0.2, 0.3, 0.4),
		annotation.NewBox(cat, 0.25, 0.25, 0.75, 0.5).WithTags("pose:Left", "truncated", "difficult", "action:jumping", "custom tag"),
	)
}

func nestedAnnotation(car, wheel *annotation.ObjectCategory) *annotation.ImageAnnotation {
	md := &annotation.ImageMetaData{FileName: "street.jpg", FolderName: "images", Width: 1920, Height: 1080, Depth: 3}
	return annotation.NewImageAnnotation(md,
		annotation.NewBox(car, 0.1, 0.1, 0.6, 0.5).WithParts(
			annotation.NewBox(wheel, 0.12, 0.4, 0.2, 0.5),
			annotation.NewPolygon(wheel, []annotation.Point{{X: 0.4, Y: 0.4}, {X: 0.5, Y: 0.4}, {X: 0.45, Y: 0.5}}).
				WithParts(annotation.NewBox(wheel, 0.42, 0.42, 0.44, 0.44)),
		),
		annotation.NewPolygon(car, []annotation.Point{{X: 0.7, Y: 0.7}, {X: 0.9, Y: 0.7}, {X: 0.8, Y: 0.9}}),
	)
}

func maxDepth(shapes []*annotation.Shape) int {
	depth := 0
	for _, s := range shapes {
		s.Walk(func(_ *annotation.Shape, d int) {
			if d+1 > depth {
				depth = d + 1
			}
		})
	}
	return depth
}

func TestXMLRoundTrip(t *testing.T) {
	t.Parallel()

	cat := annotation.NewObjectCategory("person", red)
	in := boxAnnotation(cat)

	data, err := EncodeXML(in, in.MetaData.Width, in.MetaData.Height)
	require.NoError(t, err)

	out, err := DecodeXML(data, DecodeContext{Source: "sample.xml", Resolver: newResolver(cat)})
	require.NoError(t, err)

	assert.Equal(t, "sample.png", out.MetaData.FileName)
	assert.Equal(t, "images", out.MetaData.FolderName)
	assert.InDelta(t, 640, out.MetaData.Width, 0)
	assert.Equal(t, 3, out.MetaData.Depth)
	assert.True(t, annotation.EqualShapes(in.Shapes, out.Shapes), "shapes differ after round trip")
}

func TestXMLRoundTripKeepsTagOrderAndCase(t *testing.T) {
	t.Parallel()

	cat := annotation.NewObjectCategory("person", red)
	md := &annotation.ImageMetaData{FileName: "sample.png", Width: 640, Height: 480, Depth: 3}
	tags := []string{"custom tag", "Difficult", "action:Jumping", "Pose:Left", "TRUNCATED", "another", "occluded"}
	in := annotation.NewImageAnnotation(md,
		annotation.NewBox(cat, 0.1, 0.2, 0.3, 0.4).WithTags(tags...).
			WithParts(annotation.NewBox(cat, 0.15, 0.25, 0.2, 0.3).WithTags("zeta", "difficult", "alpha")),
	)

	data, err := EncodeXML(in, md.Width, md.Height)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "<pose>Left</pose>")
	assert.Contains(t, doc, "<truncated>1</truncated>")
	assert.Contains(t, doc, "<Jumping>1</Jumping>")

	out, err := DecodeXML(data, DecodeContext{Source: "sample.xml", Resolver: newResolver(cat)})
	require.NoError(t, err)
	require.Len(t, out.Shapes, 1)
	assert.Equal(t, tags, out.Shapes[0].Tags)
	require.Len(t, out.Shapes[0].Parts, 1)
	assert.Equal(t, []string{"zeta", "difficult", "alpha"}, out.Shapes[0].Parts[0].Tags)
	assert.True(t, annotation.EqualShapes(in.Shapes, out.Shapes))
}

func TestXMLDecodeStandardElementsWithoutTagList(t *testing.T) {
	t.Parallel()

	doc := `<annotation><filename>a.jpg</filename><size><width>10</width><height>10</height></size>
		<object><name>x</name><pose>Rear</pose><truncated>1</truncated><difficult>0</difficult>
		<actions><walking>1</walking><running>0</running></actions>
		<tags><tag>mine</tag><tag>truncated</tag></tags>
		<bndbox><xmin>0</xmin><ymin>0</ymin><xmax>5</xmax><ymax>5</ymax></bndbox></object></annotation>`
	out, err := DecodeXML([]byte(doc), DecodeContext{Source: "a.xml", Resolver: newResolver()})
	require.NoError(t, err)
	require.Len(t, out.Shapes, 1)
	assert.Equal(t, []string{"mine", "truncated", "pose:Rear", "action:walking"}, out.Shapes[0].Tags)
}

func TestXMLNestingAndPolygons(t *testing.T) {
	t.Parallel()

	car := annotation.NewObjectCategory("car", red)
	wheel := annotation.NewObjectCategory("wheel", green)
	in := nestedAnnotation(car, wheel)

	data, err := EncodeXML(in, in.MetaData.Width, in.MetaData.Height)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<part>")
	assert.Contains(t, string(data), "<x1>")

	out, err := DecodeXML(data, DecodeContext{Source: "street.xml", Resolver: newResolver(car, wheel)})
	require.NoError(t, err)
	assert.Equal(t, in.ShapeCount(), out.ShapeCount())
	assert.Equal(t, maxDepth(in.Shapes), maxDepth(out.Shapes))
	assert.True(t, annotation.EqualShapes(in.Shapes, out.Shapes))
}

func TestXMLDeterministic(t *testing.T) {
	t.Parallel()

	in := boxAnnotation(annotation.NewObjectCategory("person", red))
	a, err := EncodeXML(in, 640, 480)
	require.NoError(t, err)
	b, err := EncodeXML(in, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(string(a), "<?xml"))
}

func TestXMLDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "malformed number",
			doc: `<annotation><filename>a.jpg</filename><size><width>10</width><height>10</height></size>
				<object><name>x</name><bndbox><xmin>abc</xmin><ymin>0</ymin><xmax>1</xmax><ymax>1</ymax></bndbox></object></annotation>`,
			want: "xmin",
		},
		{
			name: "missing size",
			doc:  `<annotation><filename>a.jpg</filename></annotation>`,
			want: "missing image size",
		},
		{
			name: "no geometry",
			doc: `<annotation><filename>a.jpg</filename><size><width>10</width><height>10</height></size>
				<object><name>x</name></object></annotation>`,
			want: "neither bndbox nor polygon",
		},
		{
			name: "polygon index overflow",
			doc: `<annotation><filename>a.jpg</filename><size><width>10</width><height>10</height></size>
				<object><name>x</name><polygon><x99999999999999999999>1</x99999999999999999999><y1>1</y1></polygon></object></annotation>`,
			want: "invalid polygon index",
		},
		{
			name: "not xml",
			doc:  `{"image":{}}`,
			want: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeXML([]byte(tt.doc), DecodeContext{Source: "a.xml", Resolver: newResolver()})
			require.Error(t, err)
			var derr *DecodeError
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, "a.xml", derr.Source)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestXMLMissingFieldsUseDefaults(t *testing.T) {
	t.Parallel()

	doc := `<annotation><object><name>dog</name><bndbox><xmin>0</xmin><ymin>0</ymin><xmax>5</xmax><ymax>10</ymax></bndbox></object></annotation>`
	fallback := &annotation.ImageMetaData{FileName: "dog.png", Width: 10, Height: 20}
	out, err := DecodeXML([]byte(doc), DecodeContext{Source: "dog.xml", Resolver: newResolver(), MetaData: fallback})
	require.NoError(t, err)

	assert.Equal(t, "dog.png", out.MetaData.FileName)
	require.Len(t, out.Shapes, 1)
	assert.Empty(t, out.Shapes[0].Tags)
	assert.Equal(t, green, out.Shapes[0].Category.Color, "unknown category gets a fresh color")
	assert.InDelta(t, 0.5, out.Shapes[0].Box.YMax, annotation.Epsilon)
}

func TestYOLORoundTrip(t *testing.T) {
	t.Parallel()

	person := annotation.NewObjectCategory("person", red)
	dog := annotation.NewObjectCategory("dog", green)
	md := annotation.NewPlaceholderMetaData("sample.png")
	in := annotation.NewImageAnnotation(md,
		annotation.NewBox(person, 0.25, 0.25, 0.75, 0.5),
		annotation.NewBox(dog, 0.1, 0.2, 0.3, 0.6),
	)
	index := map[string]int{"person": 0, "dog": 1}

	data, errs := EncodeYOLO(in, index)
	require.Empty(t, errs)
	assert.Equal(t, "0 0.5000 0.3750 0.5000 0.2500\n1 0.2000 0.4000 0.2000 0.4000\n", string(data))

	out, err := DecodeYOLO(data, []string{"person", "dog"}, DecodeContext{
		Source: "sample.txt", Resolver: newResolver(person, dog), MetaData: md,
	})
	require.NoError(t, err)
	assert.Same(t, md, out.MetaData)
	assert.True(t, annotation.EqualShapes(in.Shapes, out.Shapes))
}

func TestYOLOUnsupportedShapes(t *testing.T) {
	t.Parallel()

	car := annotation.NewObjectCategory("car", red)
	wheel := annotation.NewObjectCategory("wheel", green)
	in := nestedAnnotation(car, wheel)

	data, errs := EncodeYOLO(in, map[string]int{"car": 0, "wheel": 1})
	// one top-level polygon plus three nested parts
	require.Len(t, errs, 4)
	for _, err := range errs {
		var unsupportedErr *UnsupportedShapeError
		require.True(t, errors.As(err, &unsupportedErr))
		assert.Equal(t, "street.jpg", unsupportedErr.FileName)
	}
	assert.Equal(t, 1, strings.Count(string(data), "\n"), "the supported top-level box is still written")
}

func TestYOLODecodeErrors(t *testing.T) {
	t.Parallel()

	ctx := DecodeContext{Source: "a.txt", Resolver: newResolver(), MetaData: annotation.NewPlaceholderMetaData("a.jpg")}
	for _, doc := range []string{"0 0.5 0.5 0.1\n", "3 0.5 0.5 0.1 0.1\n", "0 x 0.5 0.1 0.1\n", "0 1.5 0.5 0.1 0.1\n"} {
		_, err := DecodeYOLO([]byte(doc), []string{"a"}, ctx)
		var derr *DecodeError
		assert.True(t, errors.As(err, &derr), "expected decode error for %q", doc)
	}

	names, err := DecodeYOLOCategories([]byte("cat\n\n dog \n"), YOLOCategoryFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, names)

	_, err = DecodeYOLOCategories([]byte("\n"), YOLOCategoryFile)
	assert.Error(t, err)
}

func TestJSONRoundTripNested(t *testing.T) {
	t.Parallel()

	car := annotation.NewObjectCategory("car", red)
	wheel := annotation.NewObjectCategory("wheel", green)
	in := nestedAnnotation(car, wheel)
	in.Shapes[0].Tags = []string{"occluded", "pose:Front"}

	data, err := EncodeJSON(in, in.MetaData.Width, in.MetaData.Height)
	require.NoError(t, err)

	// decode without known categories: colors must come back from the file
	out, err := DecodeJSON(data, DecodeContext{Source: "street.json", Resolver: newResolver()})
	require.NoError(t, err)

	assert.Equal(t, *in.MetaData, *out.MetaData)
	assert.True(t, annotation.EqualShapes(in.Shapes, out.Shapes))

	coords := func(a *annotation.ImageAnnotation) []float64 {
		var v []float64
		for _, s := range a.Shapes {
			s.Walk(func(sh *annotation.Shape, _ int) {
				v = append(v, sh.Box.XMin, sh.Box.YMin, sh.Box.XMax, sh.Box.YMax)
				for _, p := range sh.Points {
					v = append(v, p.X, p.Y)
				}
			})
		}
		return v
	}
	diff := cmp.Diff(coords(in), coords(out), cmpopts.EquateApprox(0, annotation.Epsilon))
	assert.Empty(t, diff, "coordinates mismatch (-want +got)")
}

func TestJSONDecodeErrors(t *testing.T) {
	t.Parallel()

	docs := map[string]string{
		"malformed number": `{"image":{"fileName":"a.jpg"},"objects":[{"category":{"name":"x"},"box":{"minX":"zero","minY":0,"maxX":1,"maxY":1}}]}`,
		"odd polygon":      `{"image":{"fileName":"a.jpg"},"objects":[{"category":{"name":"x"},"polygon":[0.1,0.2,0.3]}]}`,
		"bad color":        `{"image":{"fileName":"a.jpg"},"objects":[{"category":{"name":"x","color":"nope"},"box":{"minX":0,"minY":0,"maxX":1,"maxY":1}}]}`,
		"truncated":        `{"image":`,
	}
	for name, doc := range docs {
		_, err := DecodeJSON([]byte(doc), DecodeContext{Source: "a.json", Resolver: newResolver()})
		var derr *DecodeError
		assert.True(t, errors.As(err, &derr), name)
	}
}

func TestCSVExportScenario(t *testing.T) {
	t.Parallel()

	cat := annotation.NewObjectCategory("category", red)
	md := &annotation.ImageMetaData{FileName: "sample.png", Width: 100, Height: 200}
	a := annotation.NewImageAnnotation(md, annotation.NewBox(cat, 0, 0, 0.5, 0.5))

	enc := NewCSVEncoder()
	rows, errs := enc.Encode(a, md.Width, md.Height)
	require.Empty(t, errs)
	assert.Equal(t, 1, rows)

	want := `"name","id","label","xMin","xMax","yMin","yMax"` + "\n" +
		`"sample.png","0","category","0","50","0","100"` + "\n"
	assert.Equal(t, want, string(enc.Bytes()))
}

func TestCSVExportPolygon(t *testing.T) {
	t.Parallel()

	cat := annotation.NewObjectCategory("category", red)
	md := &annotation.ImageMetaData{FileName: "sample.png", Width: 100, Height: 200}
	a := annotation.NewImageAnnotation(md, annotation.NewPolygon(cat, []annotation.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}))

	enc := NewCSVEncoder()
	rows, errs := enc.Encode(a, md.Width, md.Height)
	assert.Zero(t, rows)
	require.Len(t, errs, 1)
	assert.Equal(t, `"name","id","label","xMin","xMax","yMin","yMax"`+"\n", string(enc.Bytes()))
}

func TestCSVExportNestedBoxesWritesLeaves(t *testing.T) {
	t.Parallel()

	car := annotation.NewObjectCategory("car", red)
	wheel := annotation.NewObjectCategory("wheel", green)
	md := &annotation.ImageMetaData{FileName: "street.png", Width: 100, Height: 100}
	a := annotation.NewImageAnnotation(md,
		annotation.NewBox(car, 0, 0, 0.5, 0.5).WithParts(
			annotation.NewBox(wheel, 0.1, 0.1, 0.2, 0.2),
			annotation.NewBox(wheel, 0.3, 0.3, 0.4, 0.4).WithParts(
				annotation.NewBox(wheel, 0.32, 0.32, 0.38, 0.38),
				annotation.NewPolygon(wheel, []annotation.Point{{X: 0.3, Y: 0.3}, {X: 0.4, Y: 0.3}, {X: 0.4, Y: 0.4}}),
			),
		),
		annotation.NewBox(car, 0.6, 0.6, 0.9, 0.9),
	)

	enc := NewCSVEncoder()
	rows, errs := enc.Encode(a, md.Width, md.Height)
	assert.Equal(t, 3, rows)
	require.Len(t, errs, 1)
	var unsupportedErr *UnsupportedShapeError
	assert.True(t, errors.As(errs[0], &unsupportedErr))

	want := `"name","id","label","xMin","xMax","yMin","yMax"` + "\n" +
		`"street.png","0","wheel","10","20","10","20"` + "\n" +
		`"street.png","1","wheel","32","38","32","38"` + "\n" +
		`"street.png","2","car","60","90","60","90"` + "\n"
	assert.Equal(t, want, string(enc.Bytes()))
}

func TestCSVIDSpansImages(t *testing.T) {
	t.Parallel()

	cat := annotation.NewObjectCategory("c", red)
	first := annotation.NewImageAnnotation(&annotation.ImageMetaData{FileName: "a.png", Width: 10, Height: 10},
		annotation.NewBox(cat, 0, 0, 0.5, 0.5), annotation.NewBox(cat, 0.5, 0.5, 1, 1))
	second := annotation.NewImageAnnotation(&annotation.ImageMetaData{FileName: "b.png", Width: 10, Height: 10},
		annotation.NewBox(cat, 0, 0, 1, 1))

	enc := NewCSVEncoder()
	enc.Encode(first, 10, 10)
	enc.Encode(second, 10, 10)

	lines := strings.Split(strings.TrimSpace(string(enc.Bytes())), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[3], `"b.png","2"`), lines[3])
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	cat := annotation.NewObjectCategory("category", red)
	md := &annotation.ImageMetaData{FileName: "sample.png", Width: 100, Height: 200}
	in := annotation.NewImageAnnotation(md, annotation.NewBox(cat, 0, 0, 0.5, 0.5), annotation.NewBox(cat, 0.1, 0.25, 0.2, 0.75))

	enc := NewCSVEncoder()
	enc.Encode(in, md.Width, md.Height)
	data := string(enc.Bytes()) +
		`"other.png","9","category","1","2","3","4"` + "\n" +
		`"sample.png","10","category","x","2","3","4"` + "\n"

	lookup := func(name string) (*annotation.ImageMetaData, error) {
		if name == "sample.png" {
			return md, nil
		}
		return nil, ErrSkipImage
	}
	out, errs := DecodeCSV([]byte(data), DecodeContext{Source: CSVFileName, Resolver: newResolver(cat)}, lookup)
	require.Len(t, errs, 1, "the malformed row is reported")
	require.Len(t, out, 1, "rows of non-importable images are skipped")
	assert.True(t, annotation.EqualShapes(in.Shapes, out[0].Shapes))
}

func TestCSVDecodeBadHeader(t *testing.T) {
	t.Parallel()

	out, errs := DecodeCSV([]byte("a,b,c,d,e,f,g\n"), DecodeContext{Source: CSVFileName}, nil)
	assert.Nil(t, out)
	require.Len(t, errs, 1)
}
