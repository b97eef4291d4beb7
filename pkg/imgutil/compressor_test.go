package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestCompressToJPEG(t *testing.T) {
	t.Run("PNGをJPEGに変換できるのだ", func(t *testing.T) {
		data := makePNG(t, 64, 48)

		out, err := CompressToJPEG(data, 75)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// JPEG マジックナンバーの確認
		if len(out) < 2 || out[0] != 0xFF || out[1] != 0xD8 {
			t.Errorf("output is not a JPEG: % x", out[:2])
		}
	})

	t.Run("画像でないデータはエラーになる", func(t *testing.T) {
		_, err := CompressToJPEG([]byte("not an image"), 75)
		if err == nil {
			t.Error("expected error for invalid data")
		}
	})
}

func TestDecodeAndEncodePNG(t *testing.T) {
	data := makePNG(t, 10, 10)

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := img.Bounds().Dx(); got != 10 {
		t.Errorf("width = %d, want 10", got)
	}

	out, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := Decode(out); err != nil {
		t.Errorf("re-decode failed: %v", err)
	}
}
