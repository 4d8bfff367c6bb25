package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/types"
)

// DimensionReader reads the size of an image without decoding its pixels
type DimensionReader interface {
	ReadDimensions(path string) (*annotation.ImageMetaData, error)
}

// Processor handles image processing operations
type Processor struct {
	dims *cache.Cache
}

var _ DimensionReader = (*Processor)(nil)

// NewProcessor creates a new image processor. Cached dimensions expire after
// ttl; expired entries are dropped on access, no janitor goroutine is started.
func NewProcessor(ttl time.Duration) *Processor {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Processor{dims: cache.New(ttl, 0)}
}

// ReadDimensions decodes only the image header of path. Results are cached
// by path, size and modification time, so an edited file is read again.
func (p *Processor) ReadDimensions(path string) (*annotation.ImageMetaData, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if v, ok := p.dims.Get(key); ok {
		md := v.(annotation.ImageMetaData)
		return &md, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	width, height, depth, err := decodeConfig(f, path)
	if err != nil {
		return nil, err
	}
	md := annotation.NewImageMetaData(path, float64(width), float64(height), depth)
	p.dims.SetDefault(key, *md)
	return md, nil
}

// CachedDimensions returns the number of cached dimension entries
func (p *Processor) CachedDimensions() int {
	return p.dims.ItemCount()
}

func decodeConfig(f *os.File, path string) (int, int, int, error) {
	cfg, _, err := image.DecodeConfig(f)
	if err == nil {
		return cfg.Width, cfg.Height, channels(cfg.ColorModel), nil
	}

	// Fallback: extended WebP variants the registered decoder rejects
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if _, serr := f.Seek(0, io.SeekStart); serr == nil {
			if data, rerr := io.ReadAll(f); rerr == nil {
				if w, h, alpha, werr := webp.GetInfo(data); werr == nil {
					depth := 3
					if alpha {
						depth = 4
					}
					return w, h, depth, nil
				}
			}
		}
	}
	return 0, 0, 0, fmt.Errorf("image: unknown format for %s: %w", path, err)
}

func channels(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return 4
	default:
		return 3
	}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// PrepareImageForModel loads the image at path and encodes it for a
// prediction model, shrinking it so its longest side is at most
// opts.MaxSize. It returns the encoded bytes and their pixel size.
func (p *Processor) PrepareImageForModel(path string, opts types.PrepareOptions) ([]byte, int, int, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, 0, 0, err
	}

	if opts.MaxSize > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > opts.MaxSize || h > opts.MaxSize {
			if w >= h {
				img = imaging.Resize(img, opts.MaxSize, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, opts.MaxSize, imaging.Lanczos)
			}
		}
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	switch strings.ToLower(opts.Format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, 0, 0, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, 0, 0, err
		}
	}
	b := img.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}
