// Package ocr は画像からの文字認識と、単語観測からの行テキスト再構成を提供します。
package ocr

import (
	"context"
	"image"
)

// Placeholder は手書きと判定された行の代わりに出力されるマーカーです。
const Placeholder = "[texto manuscrito]"

// ConfUnknown は信頼度が取得できなかった単語に割り当てる番兵値です。
// 負の信頼度は常に閾値未満として扱われます。
const ConfUnknown = -1

// Word はOCRが検出した単語1件の観測値を表します。
type Word struct {
	LineNum int     // 読み取り順に付与された行番号
	Text    string  // 前後の空白を除去済みのテキスト
	Conf    float64 // 信頼度 0〜100。負値は信頼度不明
}

// RecognizeOptions はOCR実行時の設定です。
type RecognizeOptions struct {
	Lang string // Tesseractの言語コード (例: "spa")
	DPI  int    // 画像の解像度ヒント。0の場合は未指定
}

// Engine は1枚の画像から単語単位の観測値を取り出すOCRエンジンです。
type Engine interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) ([]Word, error)
}
