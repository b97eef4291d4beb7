package generator

import (
	"context"
	"time"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// VariationGenerator はビジネスロジック層が利用する画像生成の統合窓口です。
type VariationGenerator interface {
	// SynthesizeVariation はベース画像と1行の差分指示から新しい差分画像を生成します。
	SynthesizeVariation(ctx context.Context, base *domain.BaseImage, variation string, style domain.StyleConstraints) (domain.EmbeddedImage, error)
	// RemoveBackground は画像の背景を透過に置き換えます。
	RemoveBackground(ctx context.Context, img domain.EmbeddedImage) (domain.EmbeddedImage, error)
	// AddOutline は画像の輪郭に指定色・指定幅の縁取りを付けます。
	AddOutline(ctx context.Context, img domain.EmbeddedImage, outlineColor string, outlineWidthPx int) (domain.EmbeddedImage, error)
	// ReleaseBase は File API にアップロード済みのベース画像を解放します。
	ReleaseBase(ctx context.Context, base *domain.BaseImage) error
}

// ImageCacher は、File API の URI などをキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}
