package export

import (
	"fmt"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/imgutil"
)

// Frame はスプライトシート内の1コマの位置です。
type Frame struct {
	Index int `json:"index"`
	X     int `json:"x"`
	Y     int `json:"y"`
	W     int `json:"w"`
	H     int `json:"h"`
}

// Sheet はスプライトシートの合成結果とコマ位置の索引です。
type Sheet struct {
	PNG     []byte  `json:"-"`
	Frames  []Frame `json:"frames"`
	Columns int     `json:"columns"`
	Rows    int     `json:"rows"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// SpriteSheet は画像群を1枚のシートに敷き詰めます。各画像はアスペクト比を
// 保ったままコマに収まるよう縮小され、コマの中央に配置されます。シート幅が
// maxSheetWidth を超えないよう行折り返しします。
func SpriteSheet(images []domain.EmbeddedImage, frameW, frameH, maxSheetWidth int) (*Sheet, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("エクスポート対象がありません")
	}
	if frameW <= 0 || frameH <= 0 {
		return nil, fmt.Errorf("コマのサイズが不正です: %dx%d", frameW, frameH)
	}
	if maxSheetWidth < frameW {
		return nil, fmt.Errorf("シート最大幅(%d)がコマ幅(%d)より小さいです", maxSheetWidth, frameW)
	}

	columns := maxSheetWidth / frameW
	if columns > len(images) {
		columns = len(images)
	}
	rows := (len(images) + columns - 1) / columns

	sheetW := columns * frameW
	sheetH := rows * frameH
	sheet := image.NewRGBA(image.Rect(0, 0, sheetW, sheetH))

	frames := make([]Frame, 0, len(images))
	for i, img := range images {
		decoded, err := imgutil.Decode(img.Data)
		if err != nil {
			return nil, fmt.Errorf("%d番目の画像のデコードに失敗しました: %w", i+1, err)
		}

		cellX := (i % columns) * frameW
		cellY := (i / columns) * frameH
		target := fitRect(decoded.Bounds(), image.Rect(cellX, cellY, cellX+frameW, cellY+frameH))
		xdraw.ApproxBiLinear.Scale(sheet, target, decoded, decoded.Bounds(), draw.Over, nil)

		frames = append(frames, Frame{Index: i, X: cellX, Y: cellY, W: frameW, H: frameH})
	}

	png, err := imgutil.EncodePNG(sheet)
	if err != nil {
		return nil, err
	}

	return &Sheet{
		PNG:     png,
		Frames:  frames,
		Columns: columns,
		Rows:    rows,
		Width:   sheetW,
		Height:  sheetH,
	}, nil
}

// fitRect は src をアスペクト比を保って cell に収めたときの描画先矩形を返します。
func fitRect(src, cell image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	cw, ch := cell.Dx(), cell.Dy()
	if sw == 0 || sh == 0 {
		return cell
	}

	w := cw
	h := sh * cw / sw
	if h > ch {
		h = ch
		w = sw * ch / sh
	}

	x := cell.Min.X + (cw-w)/2
	y := cell.Min.Y + (ch-h)/2
	return image.Rect(x, y, x+w, y+h)
}
