package editor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/imgutil"
)

// TextAnchor は文字入れの縦位置です。
type TextAnchor string

const (
	AnchorTop    TextAnchor = "top"
	AnchorCenter TextAnchor = "center"
	AnchorBottom TextAnchor = "bottom"
)

// TextOverlayOptions は文字入れ編集のパラメータです。
type TextOverlayOptions struct {
	Text       string
	Anchor     TextAnchor
	FontSizePx float64 // 0 以下なら画像高さから自動決定
	ColorHex   string  // 不正・未指定なら背景輝度から白黒を自動選択
	Underline  bool
}

// renderTextOverlay は画像にテキストを合成して PNG として返します。
// グリフの ascent/descent を測って配置するため、上下アンカーでも文字が
// キャンバス外に切れません。
func renderTextOverlay(src domain.EmbeddedImage, opts TextOverlayOptions) (domain.EmbeddedImage, error) {
	decoded, err := imgutil.Decode(src.Data)
	if err != nil {
		return domain.EmbeddedImage{}, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}

	bounds := decoded.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, decoded, bounds.Min, draw.Src)

	size := opts.FontSizePx
	if size <= 0 {
		size = float64(bounds.Dy()) / 10
	}

	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return domain.EmbeddedImage{}, err
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return domain.EmbeddedImage{}, err
	}
	defer face.Close()

	textColor := resolveTextColor(opts.ColorHex, decoded)
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: face,
	}

	advance := drawer.MeasureString(opts.Text).Ceil()
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	descent := metrics.Descent.Ceil()
	pad := max(4, int(size/2))

	// 横は中央寄せ。長すぎる場合は左端に寄せて描ける範囲を優先する。
	x := (bounds.Dx() - advance) / 2
	if x < pad {
		x = pad
	}

	var baseline int
	switch opts.Anchor {
	case AnchorTop:
		baseline = pad + ascent
	case AnchorBottom, "":
		baseline = bounds.Dy() - pad - descent
	default: // AnchorCenter
		baseline = (bounds.Dy()-(ascent+descent))/2 + ascent
	}

	drawer.Dot = fixed.P(bounds.Min.X+x, bounds.Min.Y+baseline)
	drawer.DrawString(opts.Text)

	if opts.Underline {
		thickness := max(1, int(size/14))
		top := bounds.Min.Y + baseline + descent/2
		line := image.Rect(bounds.Min.X+x, top, bounds.Min.X+x+advance, top+thickness)
		draw.Draw(dst, line.Intersect(bounds), image.NewUniform(textColor), image.Point{}, draw.Over)
	}

	data, err := imgutil.EncodePNG(dst)
	if err != nil {
		return domain.EmbeddedImage{}, err
	}
	return domain.EmbeddedImage{Data: data, MimeType: "image/png"}, nil
}

// resolveTextColor は指定色を解釈します。指定がなければ画像の平均輝度を
// 粗くサンプリングし、読みやすい方の白黒を選びます。
func resolveTextColor(hex string, img image.Image) color.Color {
	if c, err := colorful.Hex(hex); err == nil {
		r, g, b := c.RGB255()
		return color.RGBA{R: r, G: g, B: b, A: 255}
	}

	bounds := img.Bounds()
	step := max(1, bounds.Dx()/16)
	var sum, count float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			l, _, _ := c.Luv()
			sum += l
			count++
		}
	}

	if count > 0 && sum/count > 0.5 {
		return color.Black
	}
	return color.White
}
