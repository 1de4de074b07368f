package capture

import (
	"bytes"
	"testing"
)

func TestRasterStartsBlack(t *testing.T) {
	r := NewRaster(4, 3)
	pix := r.Bytes()
	if len(pix) != 4*3*4 {
		t.Fatalf("pixel buffer length = %d, want %d", len(pix), 4*3*4)
	}
	for i := 0; i < len(pix); i += 4 {
		if pix[i] != 0 || pix[i+1] != 0 || pix[i+2] != 0 || pix[i+3] != 0xff {
			t.Fatalf("pixel %d = %v, want opaque black", i/4, pix[i:i+4])
		}
	}
}

func TestRasterDrawCopiesFrame(t *testing.T) {
	r := NewRaster(2, 2)
	frame := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		9, 10, 11, 12, 13, 14, 15, 16,
	}
	r.Draw(frame)
	if !bytes.Equal(r.Bytes(), frame) {
		t.Errorf("raster = %v, want %v", r.Bytes(), frame)
	}

	// a short frame only touches the leading pixels
	r.Draw([]byte{0xff, 0xff, 0xff, 0xff})
	got := r.Bytes()
	if !bytes.Equal(got[:4], []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Error("short draw did not overwrite the first pixel")
	}
	if !bytes.Equal(got[4:], frame[4:]) {
		t.Error("short draw disturbed pixels beyond its length")
	}
}

func TestRasterSize(t *testing.T) {
	r := NewRaster(1280, 720)
	w, h := r.Size()
	if w != 1280 || h != 720 {
		t.Errorf("Size = (%d, %d), want (1280, 720)", w, h)
	}
}
