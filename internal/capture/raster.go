package capture

import (
	"image"
	"image/color"
	"image/draw"
)

// Raster is the off-screen render target sized to the video's native
// resolution. Every draw tick the current video frame is copied into it and
// the raster, not the source, is what gets encoded: the engine re-renders
// frames it draws itself and never re-encodes the source container.
type Raster struct {
	img *image.RGBA
}

// NewRaster allocates a raster target, initially black.
func NewRaster(width, height int) *Raster {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return &Raster{img: img}
}

// Draw copies one RGBA frame into the target. A short frame only overwrites
// the leading pixels; an oversized one is truncated.
func (r *Raster) Draw(rgba []byte) {
	copy(r.img.Pix, rgba)
}

// Bytes returns the raster's raw RGBA pixels. The slice is reused between
// draws.
func (r *Raster) Bytes() []byte {
	return r.img.Pix
}

// Size returns the raster dimensions.
func (r *Raster) Size() (width, height int) {
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}
