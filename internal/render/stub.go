package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// stubPDF is a minimal one-page PDF.
const stubPDF = "%PDF-1.4\n1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n"

// Stub is a renderer for development and tests that skips LaTeX. It writes
// the body to results.tex, for inspection, and returns a fixed blank PDF.
type Stub struct{}

// Render implements task.Renderer.
func (Stub) Render(_ context.Context, dir string, body string) ([]byte, error) {
	if err := os.WriteFile(filepath.Join(dir, SourceFile), []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", SourceFile, err)
	}
	return []byte(stubPDF), nil
}
