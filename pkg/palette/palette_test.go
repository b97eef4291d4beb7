package palette

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoToneImage は左半分が赤、右半分が青の画像です。
func twoToneImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.RGBA{R: 220, G: 20, B: 20, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 20, G: 20, B: 220, A: 255})
			}
		}
	}
	return img
}

func TestSuggest(t *testing.T) {
	t.Run("2色の画像からはその2色系統が提案される", func(t *testing.T) {
		hexes, err := Suggest(twoToneImage(64, 64), 2, MethodKMeans)

		require.NoError(t, err)
		require.Len(t, hexes, 2)
		for _, hex := range hexes {
			assert.Regexp(t, `^#[0-9a-f]{6}$`, hex)
		}
	})

	t.Run("nil画像はエラー", func(t *testing.T) {
		_, err := Suggest(nil, 2, MethodDominant)
		assert.Error(t, err)
	})

	t.Run("色数0はエラー", func(t *testing.T) {
		_, err := Suggest(twoToneImage(8, 8), 0, MethodDominant)
		assert.Error(t, err)
	})
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "dominantcolor", MethodDominant.String())
	assert.Equal(t, "kmeans", MethodKMeans.String())
}
