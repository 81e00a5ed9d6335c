package ocr

import "strings"

// ReconstructLines は単語単位の観測値から行テキストを再構成します。
// 信頼度が confThreshold 以上の単語を半角スペースで連結し、閾値未満の
// 単語しか含まない行は Placeholder に置き換えます。行の区切りは入力順の
// 行番号の変化で判定し、並べ替えは行いません。
func ReconstructLines(words []Word, confThreshold int) []string {
	var (
		lines      []string
		buffer     []string
		manuscript bool
	)
	currentLine := 1

	for _, w := range words {
		// 行番号が変わったらバッファかプレースホルダーを出力する
		if w.LineNum != currentLine {
			if line, ok := flushLine(buffer, manuscript); ok {
				lines = append(lines, line)
			}
			buffer = buffer[:0]
			manuscript = false
			currentLine = w.LineNum
		}

		if w.Text == "" {
			continue
		}

		if w.Conf >= float64(confThreshold) {
			buffer = append(buffer, w.Text)
		} else {
			manuscript = true
		}
	}

	// 最終行のフラッシュ
	if line, ok := flushLine(buffer, manuscript); ok {
		lines = append(lines, line)
	}

	return lines
}

func flushLine(buffer []string, manuscript bool) (string, bool) {
	if len(buffer) > 0 {
		return strings.Join(buffer, " "), true
	}
	if manuscript {
		return Placeholder, true
	}
	return "", false
}
