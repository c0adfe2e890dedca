// Package render implements C4: rasterizing a single PDF page at a
// requested DPI, subject to a pixel-budget clamp and a JPEG size guard.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/objectstore"
)

// maxPNGBytes is the size guard threshold (10 MiB, spec.md §4.4).
const maxPNGBytes = 10 * 1024 * 1024

// floorDPI is the minimum effective DPI after clamping (spec.md §4.4).
const floorDPI = 36

// Limits are the configured ceilings applied by ClampDPI.
type Limits struct {
	MaxDPI    int
	MaxPixels int
}

// ClampDPI applies spec.md §4.4's DPI clamp formula: d' = min(d, MAX_DPI);
// if the longest page edge at d' exceeds MAX_PIXELS, scale d' down so the
// longest edge equals MAX_PIXELS; floor at 36.
func ClampDPI(requestedDPI int, widthPt, heightPt float64, limits Limits) int {
	d := requestedDPI
	if d > limits.MaxDPI {
		d = limits.MaxDPI
	}
	longestPt := math.Max(widthPt, heightPt)
	longestPx := longestPt / 72.0 * float64(d)
	if longestPx > float64(limits.MaxPixels) {
		d = int(math.Floor(float64(limits.MaxPixels) / (longestPt / 72.0)))
	}
	if d < floorDPI {
		d = floorDPI
	}
	return d
}

// Renderer renders PDF pages to raster images and uploads them to page-cache.
type Renderer struct {
	store  objectstore.Client
	guard  tempDirProvider
	limits Limits
	log    *logging.Logger
}

type tempDirProvider interface {
	EnsureJobDir(jobID string) (string, error)
}

// New builds a Renderer.
func New(store objectstore.Client, guard tempDirProvider, limits Limits, log *logging.Logger) *Renderer {
	return &Renderer{store: store, guard: guard, limits: limits, log: log}
}

// Request bundles the inputs a single render pass needs.
type Request struct {
	JobID       string
	SourceKey   string
	PageNum     int
	Kind        model.RenderKind
	RequestedDPI int
}

// Result is the output of a successful render.
type Result struct {
	OutputKey   string
	ContentType string
}

// Render fetches the source PDF (caching it in the job's temp dir), renders
// the requested page, applies the size guard, and uploads the result to
// page-cache. On failure the caller marks the render request FAILED and
// does not retry inside this component (spec.md §4.4).
func (r *Renderer) Render(ctx context.Context, req Request) (*Result, error) {
	dir, err := r.guard.EnsureJobDir(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("ensure job temp dir: %w", err)
	}

	localPDF := filepath.Join(dir, "source.pdf")
	if _, err := os.Stat(localPDF); os.IsNotExist(err) {
		if err := r.store.Download(ctx, "raw-uploads", req.SourceKey, localPDF); err != nil {
			return nil, fmt.Errorf("download source pdf: %w", err)
		}
	}

	widthPt, heightPt, err := pageDimensions(localPDF, req.PageNum)
	if err != nil {
		return nil, fmt.Errorf("read page dimensions: %w", err)
	}
	effectiveDPI := ClampDPI(req.RequestedDPI, widthPt, heightPt, r.limits)

	img, err := rasterizePage(localPDF, req.PageNum, effectiveDPI)
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", req.PageNum, err)
	}

	kindLabel := "thumb"
	if req.Kind == model.RenderMeasure {
		kindLabel = "measure"
	}

	pngData, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	ext := "png"
	contentType := "image/png"
	data := pngData
	if len(pngData) > maxPNGBytes {
		jpegData, err := encodeJPEG(img)
		if err != nil {
			return nil, fmt.Errorf("re-encode jpeg: %w", err)
		}
		ext = "jpg"
		contentType = "image/jpeg"
		data = jpegData
	}

	outputKey := fmt.Sprintf("%s/%s-%04d.%s", req.JobID, kindLabel, req.PageNum, ext)
	if err := r.store.UploadBytes(ctx, "page-cache", outputKey, data, contentType); err != nil {
		return nil, fmt.Errorf("upload rendered page: %w", err)
	}

	return &Result{OutputKey: outputKey, ContentType: contentType}, nil
}

func pageDimensions(pdfPath string, pageNum int) (widthPt, heightPt float64, err error) {
	dims, err := api.PageDimsFile(pdfPath)
	if err != nil {
		return 0, 0, err
	}
	if pageNum < 1 || pageNum > len(dims) {
		return 0, 0, fmt.Errorf("page %d out of range (pdf has %d pages)", pageNum, len(dims))
	}
	d := dims[pageNum-1]
	return d.Width, d.Height, nil
}

// rasterizePage is the narrow contract to the rasterization library
// (spec.md §1, "PDF rendering library... called through narrow interfaces").
// pdfcpu exposes page geometry but not a raster backend in this pack; the
// placeholder below renders a blank canvas sized to the clamped DPI so the
// rest of the pipeline (upload, size guard, key convention) is exercised
// end to end.
func rasterizePage(pdfPath string, pageNum int, dpi int) (image.Image, error) {
	widthPt, heightPt, err := pageDimensions(pdfPath, pageNum)
	if err != nil {
		return nil, err
	}
	w := int(widthPt / 72.0 * float64(dpi))
	h := int(heightPt / 72.0 * float64(dpi))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	return imaging.New(w, h, canvas.At(0, 0)), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
