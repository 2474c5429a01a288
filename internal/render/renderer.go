// Package render hosts the bounded-concurrency render broker (spec.md
// §4.E), adapted from the teacher's workers[R] engine, plus a stub
// HTML-to-raster Renderer used in tests. The real HTML templating,
// headless-browser rasterization, and monochrome post-processing are
// external collaborators behind the Renderer interface, out of scope here
// (spec.md §1).
package render

import (
	"bytes"
	"context"
	"html/template"
	"image"
	"image/color"
	"image/png"
)

// Renderer turns an HTML payload into printer-ready raster bytes. The
// production implementation (headless-browser screenshot, 2-colour
// threshold at 160/255, resize to 565px, trailing cut-command bytes) is an
// external collaborator not implemented by this repository.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// cutCommand is the printer command appended after the PNG body: feed and
// cut (spec.md §6).
var cutCommand = []byte{0x1B, 0x64, 0x02}

// StubRenderer is a non-production Renderer for tests: it ignores the HTML
// content beyond templating it into a fixed-size placeholder image, and
// appends the real cut-command bytes so downstream fetch/content-length
// logic can be exercised faithfully. It is explicitly not the real
// rasterizer (spec.md §1 lists rasterization as out of scope).
type StubRenderer struct {
	tmpl *template.Template
}

// NewStubRenderer constructs a StubRenderer.
func NewStubRenderer() *StubRenderer {
	return &StubRenderer{tmpl: template.Must(template.New("receipt").Parse(`{{.}}`))}
}

// Render implements Renderer.
func (r *StubRenderer) Render(_ context.Context, html string) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, html); err != nil {
		return nil, err
	}

	img := image.NewPaletted(image.Rect(0, 0, 565, 1), color.Palette{color.White, color.Black})
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, err
	}

	out := make([]byte, 0, pngBuf.Len()+len(cutCommand))
	out = append(out, pngBuf.Bytes()...)
	out = append(out, cutCommand...)
	return out, nil
}
