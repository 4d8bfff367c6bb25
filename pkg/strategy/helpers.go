package strategy

import (
	"errors"
	"fmt"
	"os"

	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/ioresult"
)

func requireDir(root string) error {
	if !utils.DirExists(root) {
		return &FatalSetupError{Path: root, Err: errors.New("directory does not exist")}
	}
	return nil
}

func requireWritableDir(root string) error {
	if err := utils.CheckWritableDir(root); err != nil {
		return &FatalSetupError{Path: root, Err: err}
	}
	return nil
}

func listAnnotationFiles(root, ext string) ([]string, error) {
	if err := requireDir(root); err != nil {
		return nil, err
	}
	files, err := utils.ListFilesWithExtension(root, ext)
	if err != nil {
		return nil, &FatalSetupError{Path: root, Err: err}
	}
	return files, nil
}

// importableByStem maps the extension-less name of every importable image to
// its file name. The first image wins when two share a stem.
func importableByStem(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		stem := utils.FileStem(n)
		if _, ok := out[stem]; !ok {
			out[stem] = n
		}
	}
	return out
}

func withShapes(annotations []*annotation.ImageAnnotation) []*annotation.ImageAnnotation {
	out := make([]*annotation.ImageAnnotation, 0, len(annotations))
	for _, a := range annotations {
		if a != nil && len(a.Shapes) > 0 {
			out = append(out, a)
		}
	}
	return out
}

// dimensions returns the pixel size of the annotated image, falling back to
// lookup when the annotation only holds placeholder metadata. The annotation
// itself is not modified.
func dimensions(a *annotation.ImageAnnotation, lookup MetaDataFunc) (float64, float64, error) {
	if a.MetaData.HasDetails() {
		return a.MetaData.Width, a.MetaData.Height, nil
	}
	if lookup == nil {
		return 0, 0, fmt.Errorf("dimensions of image %s are unknown", a.FileName())
	}
	md, err := lookup(a.FileName())
	if err != nil {
		return 0, 0, err
	}
	if !md.HasDetails() {
		return 0, 0, fmt.Errorf("dimensions of image %s are unknown", a.FileName())
	}
	return md.Width, md.Height, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &TransportError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func failedLoad(source string, err error) LoadOutcome {
	return LoadOutcome{Errors: []ioresult.ErrorInfoEntry{entry(source, err)}}
}

func failedSave(source string, err error) SaveOutcome {
	return SaveOutcome{Errors: []ioresult.ErrorInfoEntry{entry(source, err)}}
}

func entriesFor(source string, errs []error) []ioresult.ErrorInfoEntry {
	out := make([]ioresult.ErrorInfoEntry, 0, len(errs))
	for _, err := range errs {
		out = append(out, entry(source, err))
	}
	return out
}
