package render

import (
	"image"
	"image/color"
	"testing"
)

func TestCropCopiesRegion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src.Set(4, 4, color.RGBA{R: 255, A: 255})

	cropped, err := Crop(src, image.Rect(2, 2, 8, 8))
	if err != nil {
		t.Fatalf("Crop returned error: %v", err)
	}

	bounds := cropped.Bounds()
	if bounds.Dx() != 6 || bounds.Dy() != 6 {
		t.Fatalf("unexpected bounds: %v", bounds)
	}
	if bounds.Min != (image.Point{}) {
		t.Fatalf("expected origin at (0,0), got %v", bounds.Min)
	}

	r, _, _, _ := cropped.At(2, 2).RGBA()
	if r == 0 {
		t.Fatal("expected marked pixel to survive the crop")
	}
}

func TestCropClampsToImageBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 5))

	cropped, err := Crop(src, image.Rect(3, 3, 20, 20))
	if err != nil {
		t.Fatalf("Crop returned error: %v", err)
	}
	if cropped.Bounds().Dx() != 2 || cropped.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds: %v", cropped.Bounds())
	}
}

func TestCropOutsideBoundsFails(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 5))

	if _, err := Crop(src, image.Rect(10, 10, 20, 20)); err == nil {
		t.Fatal("expected error for a region outside the image")
	}
}
