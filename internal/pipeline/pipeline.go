// Package pipeline はPDFからMarkdownへのページ変換パイプラインを提供します。
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/yourusername/scan-scribe/internal/ocr"
	"github.com/yourusername/scan-scribe/internal/render"
)

// Options は変換1回分の設定です。
type Options struct {
	DPI           int
	Lang          string
	ConfThreshold int
	Area          *image.Rectangle // nil の場合は切り抜きなし
}

// Service はページ変換パイプラインです。切り抜き・OCR・行再構成を
// ページ順に適用し、Markdownを逐次書き出します。
type Service struct {
	raster render.Rasterizer
	engine ocr.Engine
}

// NewService は Service を作成します。
func NewService(raster render.Rasterizer, engine ocr.Engine) (*Service, error) {
	if raster == nil {
		return nil, errors.New("rasterizer is nil")
	}
	if engine == nil {
		return nil, errors.New("ocr engine is nil")
	}
	return &Service{raster: raster, engine: engine}, nil
}

// Convert は inputPDF の全ページをOCRし、outputMD にMarkdownを書き出します。
// ページは 1..N の順に処理され、1ページの失敗で変換全体が中断されます。
// 出力はページごとに書き出されるため、文書全体をメモリに保持しません。
// logf が nil でない場合、進捗メッセージを逐次通知します。
func (s *Service) Convert(ctx context.Context, inputPDF, outputMD string, opts Options, logf func(string)) error {
	log := func(format string, args ...any) {
		if logf != nil {
			logf(fmt.Sprintf(format, args...))
		}
	}

	log("Iniciando conversión del PDF %s", filepath.Base(inputPDF))

	pageCount, err := s.raster.PageCount(ctx, inputPDF)
	if err != nil {
		return err
	}
	log("El PDF será convertido en %d imágenes", pageCount)

	out, err := os.OpenFile(outputMD, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("no se pudo crear el archivo Markdown: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		log("Procesando página %d/%d", page, pageCount)

		img, err := s.raster.RenderPage(ctx, inputPDF, page, opts.DPI)
		if err != nil {
			return err
		}

		if opts.Area != nil {
			log("Recortando área específica: %v", *opts.Area)
			img, err = render.Crop(img, *opts.Area)
			if err != nil {
				return err
			}
		}

		log("Aplicando OCR a la página %d...", page)
		words, err := s.engine.Recognize(ctx, img, ocr.RecognizeOptions{Lang: opts.Lang, DPI: opts.DPI})
		if err != nil {
			return fmt.Errorf("fallo de OCR en la página %d: %w", page, err)
		}
		log("OCR completado. Se detectaron %d elementos", len(words))

		lines := ocr.ReconstructLines(words, opts.ConfThreshold)
		printed, manuscript := tally(lines)
		log("Análisis completado. Se detectaron %d líneas de texto impreso y %d fragmentos manuscritos", printed, manuscript)

		if err := writePage(w, page, lines); err != nil {
			return fmt.Errorf("no se pudo escribir la página %d: %w", page, err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("no se pudo escribir la página %d: %w", page, err)
		}
		log("OCR completado para página %d", page)
	}

	log("Procesamiento completado. Archivo Markdown generado: %s", filepath.Base(outputMD))
	return nil
}

// writePage は1ページ分のMarkdownセクションを書き出します。
func writePage(w *bufio.Writer, page int, lines []string) error {
	if _, err := fmt.Fprintf(w, "## Página %d\n\n", page); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n\n---\n\n")
	return err
}

func tally(lines []string) (printed, manuscript int) {
	for _, line := range lines {
		if line == ocr.Placeholder {
			manuscript++
		} else {
			printed++
		}
	}
	return printed, manuscript
}
