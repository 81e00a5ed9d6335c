package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine は gosseract クライアントを利用する Engine 実装です。
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine は Tesseract ベースのOCRエンジンを作成します。
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

// Recognize は1枚の画像に対してOCRを実行し、単語単位の観測値を返します。
// 行番号は block / paragraph / line の切り替わりごとに増加する連番として
// 付与されます。
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if opts.Lang != "" {
		if err := c.SetLanguage(opts.Lang); err != nil {
			return nil, fmt.Errorf("set language: %w", err)
		}
	}
	if opts.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(opts.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	// 自動ページセグメンテーション（向き検出あり）
	if err := c.SetPageSegMode(gosseract.PSM_AUTO_OSD); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}

	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}

	type lineKey struct {
		block, par, line int
	}
	words := make([]Word, 0, len(boxes))
	lineNum := 0
	var current lineKey
	for i, b := range boxes {
		key := lineKey{block: b.BlockNum, par: b.ParNum, line: b.LineNum}
		if i == 0 || key != current {
			current = key
			lineNum++
		}
		conf := b.Confidence
		if conf < 0 || conf > 100 {
			conf = ConfUnknown
		}
		words = append(words, Word{
			LineNum: lineNum,
			Text:    strings.TrimSpace(b.Word),
			Conf:    conf,
		})
	}
	return words, nil
}
