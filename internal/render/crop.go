package render

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Crop は画像から rect の範囲を切り出し、左上原点に詰め直したコピーを
// 返します。rect は画像境界でクランプされ、交差しない場合はエラーです。
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	bounds := rect.Intersect(img.Bounds())
	if bounds.Empty() {
		return nil, fmt.Errorf("el área de recorte queda fuera de la imagen: %v", rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Copy(dst, image.Point{}, img, bounds, xdraw.Src, nil)
	return dst, nil
}
