package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"

	xdraw "golang.org/x/image/draw"

	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/imgutil"
)

// AnimatedGIF は画像群を指定サイズ・フレームレートの無限ループ GIF にします。
// GIF は半透明を表現できないため、各コマは白背景に合成してから量子化します。
func AnimatedGIF(images []domain.EmbeddedImage, frameW, frameH, fps int) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("エクスポート対象がありません")
	}
	if frameW <= 0 || frameH <= 0 {
		return nil, fmt.Errorf("コマのサイズが不正です: %dx%d", frameW, frameH)
	}
	if fps <= 0 {
		fps = 4
	}

	// GIF の遅延は 1/100 秒単位
	delay := 100 / fps
	if delay < 2 {
		delay = 2
	}

	rect := image.Rect(0, 0, frameW, frameH)
	anim := &gif.GIF{LoopCount: 0}

	for i, img := range images {
		decoded, err := imgutil.Decode(img.Data)
		if err != nil {
			return nil, fmt.Errorf("%d番目の画像のデコードに失敗しました: %w", i+1, err)
		}

		frame := image.NewRGBA(rect)
		draw.Draw(frame, rect, image.White, image.Point{}, draw.Src)
		xdraw.ApproxBiLinear.Scale(frame, fitRect(decoded.Bounds(), rect), decoded, decoded.Bounds(), draw.Over, nil)

		paletted := image.NewPaletted(rect, palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, rect, frame, image.Point{})

		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}

	buf := new(bytes.Buffer)
	if err := gif.EncodeAll(buf, anim); err != nil {
		return nil, fmt.Errorf("GIFのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
