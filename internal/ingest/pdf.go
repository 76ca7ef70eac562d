package ingest

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

// PageCount returns the number of pages in a PDF.
func PageCount(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get page count: %v", ErrUnsupportedFile, err)
	}
	return n, nil
}

// loadPDF renders the selected pages concurrently, keeping page order.
func loadPDF(ctx context.Context, pdfPath string, opts LoadOptions) ([]image.Image, error) {
	total, err := PageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	pages, err := ParsePageRange(opts.PageRange, total)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "chandra-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	opts.Logger.Debug("rendering pdf", "path", pdfPath, "pages", len(pages), "of", total, "dpi", opts.ImageDPI)

	out := make([]image.Image, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, pageNum := range pages {
		g.Go(func() error {
			path, err := renderPage(gctx, pdfPath, tmpDir, pageNum, opts.ImageDPI)
			if err != nil {
				return fmt.Errorf("failed to render page %d: %w", pageNum, err)
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			img, err := Decode(f, opts.MaxImagePixels)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNum, err)
			}
			out[i] = Upscale(img, opts.MinPDFImageDim)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// renderPage renders one 1-indexed page to a PNG in outDir with pdftoppm.
func renderPage(ctx context.Context, pdfPath, outDir string, pageNum, dpi int) (string, error) {
	prefix := filepath.Join(outDir, fmt.Sprintf("page_%04d", pageNum))
	p := strconv.Itoa(pageNum)

	// -singlefile writes <prefix>.png without a page suffix
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", p,
		"-l", p,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	path := prefix + ".png"
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return path, nil
}
