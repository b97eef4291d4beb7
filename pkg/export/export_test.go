package export

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

func pngEntry(t *testing.T, id, prompt string, w, h int) domain.GeneratedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return domain.GeneratedImage{
		ID:     id,
		Prompt: prompt,
		Image:  domain.EmbeddedImage{Data: buf.Bytes(), MimeType: "image/png"},
	}
}

func TestArchive(t *testing.T) {
	t.Run("エントリごとに連番+スラッグのファイルができる", func(t *testing.T) {
		entries := []domain.GeneratedImage{
			pngEntry(t, "v-1", "笑顔", 8, 8),
			pngEntry(t, "v-2", "happy grin", 8, 8),
		}

		data, err := Archive(entries)
		require.NoError(t, err)

		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		require.Len(t, zr.File, 2)
		assert.Equal(t, "01_笑顔.png", zr.File[0].Name)
		assert.Equal(t, "02_happy_grin.png", zr.File[1].Name)
	})

	t.Run("空の選択はエラーになる", func(t *testing.T) {
		_, err := Archive(nil)
		assert.Error(t, err)
	})
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"笑顔", "笑顔"},
		{"happy grin", "happy_grin"},
		{`a/b\c:d`, "a_b_c_d"},
		{"   ", "variation"},
	}
	for _, tt := range tests {
		if got := slug(tt.in); got != tt.want {
			t.Errorf("slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpriteSheet(t *testing.T) {
	images := func(n int) []domain.EmbeddedImage {
		out := make([]domain.EmbeddedImage, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, pngEntry(t, "", "", 32, 32).Image)
		}
		return out
	}

	t.Run("最大幅で行折り返しされコマ索引が返る", func(t *testing.T) {
		sheet, err := SpriteSheet(images(5), 64, 64, 200)
		require.NoError(t, err)

		// 200 / 64 = 3列、5枚なので2行
		assert.Equal(t, 3, sheet.Columns)
		assert.Equal(t, 2, sheet.Rows)
		assert.Equal(t, 192, sheet.Width)
		assert.Equal(t, 128, sheet.Height)

		require.Len(t, sheet.Frames, 5)
		assert.Equal(t, Frame{Index: 0, X: 0, Y: 0, W: 64, H: 64}, sheet.Frames[0])
		assert.Equal(t, Frame{Index: 3, X: 0, Y: 64, W: 64, H: 64}, sheet.Frames[3])

		decoded, err := png.Decode(bytes.NewReader(sheet.PNG))
		require.NoError(t, err)
		assert.Equal(t, 192, decoded.Bounds().Dx())
		assert.Equal(t, 128, decoded.Bounds().Dy())
	})

	t.Run("枚数が列数より少なければシートは詰められる", func(t *testing.T) {
		sheet, err := SpriteSheet(images(2), 64, 64, 640)
		require.NoError(t, err)

		assert.Equal(t, 2, sheet.Columns)
		assert.Equal(t, 1, sheet.Rows)
		assert.Equal(t, 128, sheet.Width)
	})

	t.Run("コマ幅より狭い最大幅はエラー", func(t *testing.T) {
		_, err := SpriteSheet(images(1), 64, 64, 32)
		assert.Error(t, err)
	})
}

func TestFitRect(t *testing.T) {
	t.Run("横長画像はコマ幅いっぱいで上下センター", func(t *testing.T) {
		got := fitRect(image.Rect(0, 0, 200, 100), image.Rect(0, 0, 64, 64))
		assert.Equal(t, 64, got.Dx())
		assert.Equal(t, 32, got.Dy())
		assert.Equal(t, 16, got.Min.Y)
	})

	t.Run("縦長画像はコマ高さいっぱいで左右センター", func(t *testing.T) {
		got := fitRect(image.Rect(0, 0, 100, 200), image.Rect(0, 0, 64, 64))
		assert.Equal(t, 32, got.Dx())
		assert.Equal(t, 64, got.Dy())
		assert.Equal(t, 16, got.Min.X)
	})
}

func TestAnimatedGIF(t *testing.T) {
	t.Run("全コマ入りの無限ループGIFができる", func(t *testing.T) {
		images := []domain.EmbeddedImage{
			pngEntry(t, "", "", 32, 32).Image,
			pngEntry(t, "", "", 32, 32).Image,
			pngEntry(t, "", "", 32, 32).Image,
		}

		data, err := AnimatedGIF(images, 48, 48, 4)
		require.NoError(t, err)

		decoded, err := gif.DecodeAll(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Len(t, decoded.Image, 3)
		assert.Equal(t, 0, decoded.LoopCount)
		// 4fps = 25/100秒
		assert.Equal(t, 25, decoded.Delay[0])
	})

	t.Run("空の入力はエラー", func(t *testing.T) {
		_, err := AnimatedGIF(nil, 48, 48, 4)
		assert.Error(t, err)
	})
}
