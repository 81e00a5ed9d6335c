package ocr

import (
	"reflect"
	"testing"
)

func TestReconstructLinesAllHighConfidence(t *testing.T) {
	words := []Word{
		{LineNum: 1, Text: "Hola", Conf: 90},
		{LineNum: 1, Text: "Mundo", Conf: 85},
	}

	lines := ReconstructLines(words, 60)
	if len(lines) != 1 || lines[0] != "Hola Mundo" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestReconstructLinesAllLowConfidence(t *testing.T) {
	words := []Word{
		{LineNum: 1, Text: "garabato", Conf: 12},
		{LineNum: 1, Text: "firma", Conf: 30},
	}

	lines := ReconstructLines(words, 60)
	if len(lines) != 1 || lines[0] != Placeholder {
		t.Fatalf("expected placeholder, got %#v", lines)
	}
}

func TestReconstructLinesMixedConfidenceDropsLowWords(t *testing.T) {
	words := []Word{
		{LineNum: 1, Text: "Factura", Conf: 95},
		{LineNum: 1, Text: "nota", Conf: 20},
		{LineNum: 1, Text: "2024", Conf: 88},
	}

	lines := ReconstructLines(words, 60)
	if len(lines) != 1 || lines[0] != "Factura 2024" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestReconstructLinesEmptyLineProducesNothing(t *testing.T) {
	words := []Word{
		{LineNum: 1, Text: "Hola", Conf: 90},
		{LineNum: 2, Text: "", Conf: ConfUnknown},
		{LineNum: 3, Text: "Adiós", Conf: 90},
	}

	lines := ReconstructLines(words, 60)
	expected := []string{"Hola", "Adiós"}
	if !reflect.DeepEqual(lines, expected) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestReconstructLinesEmptyWordDoesNotMarkManuscript(t *testing.T) {
	// 空テキストの観測は信頼度に関わらず行へ影響しない
	words := []Word{
		{LineNum: 1, Text: "", Conf: 5},
	}

	lines := ReconstructLines(words, 60)
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %#v", lines)
	}
}

func TestReconstructLinesUnknownConfidenceIsLow(t *testing.T) {
	words := []Word{
		{LineNum: 1, Text: "ilegible", Conf: ConfUnknown},
	}

	lines := ReconstructLines(words, 0)
	if len(lines) != 1 || lines[0] != Placeholder {
		t.Fatalf("expected placeholder for unknown confidence, got %#v", lines)
	}
}

func TestReconstructLinesMultipleBoundaries(t *testing.T) {
	words := []Word{
		{LineNum: 1, Text: "Primera", Conf: 90},
		{LineNum: 1, Text: "línea", Conf: 90},
		{LineNum: 2, Text: "borroso", Conf: 10},
		{LineNum: 3, Text: "Tercera", Conf: 70},
	}

	lines := ReconstructLines(words, 60)
	expected := []string{"Primera línea", Placeholder, "Tercera"}
	if !reflect.DeepEqual(lines, expected) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestReconstructLinesNoWords(t *testing.T) {
	if lines := ReconstructLines(nil, 60); len(lines) != 0 {
		t.Fatalf("expected no lines, got %#v", lines)
	}
}
