// Package palette はアップロードされたベースイラストからブランドカラー候補を
// 抽出します。抽出結果はカラーピッカーの初期値の提案に使われます。
package palette

import (
	"fmt"
	"image"
	"math"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// Method は抽出アルゴリズムの選択です。
type Method int

const (
	// MethodDominant は出現頻度ベースの高速な抽出です（既定）。
	MethodDominant Method = iota
	// MethodKMeans は k-means クラスタリングによる抽出です。
	MethodKMeans
)

func (m Method) String() string {
	switch m {
	case MethodKMeans:
		return "kmeans"
	default:
		return "dominantcolor"
	}
}

// Suggest は画像から k 色の候補を 16進表記で返します。先頭ほど支配的な色です。
func Suggest(img image.Image, k int, method Method) ([]string, error) {
	if img == nil {
		return nil, fmt.Errorf("画像がありません")
	}
	if k <= 0 {
		return nil, fmt.Errorf("色数が不正です: %d", k)
	}

	var colors []colorful.Color
	if method == MethodKMeans {
		colors = kmeansPalette(img, k)
	}
	if len(colors) == 0 {
		colors = dominantPalette(img, k)
	}
	if len(colors) == 0 {
		return nil, fmt.Errorf("色を抽出できませんでした")
	}

	hexes := make([]string, 0, len(colors))
	for _, c := range colors {
		hexes = append(hexes, c.Hex())
	}
	return hexes, nil
}

func dominantPalette(img image.Image, k int) []colorful.Color {
	candidates := dominantcolor.FindWeight(img, max(8, k*4))

	out := make([]colorful.Color, 0, k)
	for _, cand := range candidates {
		col, ok := colorful.MakeColor(cand.RGBA)
		if !ok {
			continue
		}
		out = append(out, col.Clamped())
		if len(out) == k {
			break
		}
	}
	return out
}

func kmeansPalette(img image.Image, k int) []colorful.Color {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	// 大きな画像でも k-means が現実的な時間で終わるよう間引く
	const maxSamples = 8000
	step := 1
	if width*height > maxSamples {
		step = int(math.Sqrt(float64(width*height)/float64(maxSamples))) + 1
	}

	dataset := make(clusters.Observations, 0, maxSamples)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			if a16 == 0 {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{
				float64(r16) / 65535.0,
				float64(g16) / 65535.0,
				float64(b16) / 65535.0,
			})
		}
	}
	if len(dataset) < k {
		return nil
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil || len(cc) == 0 {
		return nil
	}

	// クラスタの大きい順＝支配的な色の順に並べる
	out := make([]colorful.Color, 0, len(cc))
	for len(out) < k && len(cc) > 0 {
		best := 0
		for i := 1; i < len(cc); i++ {
			if len(cc[i].Observations) > len(cc[best].Observations) {
				best = i
			}
		}
		center := cc[best].Center
		cc = append(cc[:best], cc[best+1:]...)
		if len(center) < 3 {
			continue
		}
		out = append(out, colorful.Color{R: center[0], G: center[1], B: center[2]}.Clamped())
	}
	return out
}
