// Package render はPDFページの画像化と切り抜きを提供します。
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rasterizer はPDFをページ単位で画像化します。
type Rasterizer interface {
	PageCount(ctx context.Context, pdfPath string) (int, error)
	RenderPage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error)
}

// Poppler は poppler-utils の pdftoppm を利用する Rasterizer 実装です。
type Poppler struct {
	pdftoppmPath string
}

// NewPoppler は Poppler を作成します。path が空の場合は PATH 上の
// pdftoppm を使用します。
func NewPoppler(path string) *Poppler {
	if path == "" {
		path = "pdftoppm"
	}
	return &Poppler{pdftoppmPath: path}
}

// PageCount はPDFのページ数を返します。
func (p *Poppler) PageCount(ctx context.Context, pdfPath string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := pdfapi.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("no se pudo obtener el número de páginas: %w", err)
	}
	return count, nil
}

// RenderPage は指定ページを画像化します。page は1始まりです。
func (p *Poppler) RenderPage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error) {
	args := []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		pdfPath,
	}

	cmd := exec.CommandContext(ctx, p.pdftoppmPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("fallo de pdftoppm al renderizar la página %d: %s: %w", page, stderr.String(), err)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("no se pudo decodificar la imagen de la página %d: %w", page, err)
	}
	return img, nil
}
