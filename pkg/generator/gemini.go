package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/imgutil"
)

// GeminiVariationClient は差分生成・背景削除・縁取りの3操作を提供する
// ステートレスなリクエスト/レスポンスラッパーです。
type GeminiVariationClient struct {
	aiClient   gemini.GenerativeModel
	model      string
	cache      ImageCacher
	expiration time.Duration
}

// NewGeminiVariationClient は依存関係を注入して GeminiVariationClient を初期化します。
func NewGeminiVariationClient(aiClient gemini.GenerativeModel, model string, cache ImageCacher, cacheTTL time.Duration) (*GeminiVariationClient, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if model == "" {
		model = DefaultModel
	}
	// cache は nil を許容（File API の使い回しなし動作）

	return &GeminiVariationClient{
		aiClient:   aiClient,
		model:      model,
		cache:      cache,
		expiration: cacheTTL,
	}, nil
}

// SynthesizeVariation はベース画像に1行の差分指示を適用した画像を生成します。
func (c *GeminiVariationClient) SynthesizeVariation(ctx context.Context, base *domain.BaseImage, variation string, style domain.StyleConstraints) (domain.EmbeddedImage, error) {
	parts := []*genai.Part{
		{Text: BuildVariationPrompt(variation, style)},
		c.basePart(ctx, base),
	}

	img, err := c.generate(ctx, parts, style.Seed)
	if err != nil {
		return domain.EmbeddedImage{}, fmt.Errorf("差分生成エラー: %w", err)
	}
	return img, nil
}

// RemoveBackground は画像の背景を透過に置き換えます。
func (c *GeminiVariationClient) RemoveBackground(ctx context.Context, img domain.EmbeddedImage) (domain.EmbeddedImage, error) {
	parts := []*genai.Part{
		{Text: removeBackgroundPrompt},
		toPart(img),
	}

	out, err := c.generate(ctx, parts, nil)
	if err != nil {
		return domain.EmbeddedImage{}, fmt.Errorf("背景削除エラー: %w", err)
	}
	return out, nil
}

// AddOutline は画像の輪郭に指定色・指定幅の縁取りを付けます。
func (c *GeminiVariationClient) AddOutline(ctx context.Context, img domain.EmbeddedImage, outlineColor string, outlineWidthPx int) (domain.EmbeddedImage, error) {
	parts := []*genai.Part{
		{Text: outlinePrompt(outlineColor, outlineWidthPx)},
		toPart(img),
	}

	out, err := c.generate(ctx, parts, nil)
	if err != nil {
		return domain.EmbeddedImage{}, fmt.Errorf("縁取りエラー: %w", err)
	}
	return out, nil
}

// ReleaseBase は File API にアップロード済みのベース画像を削除します。
// アップロードされていない（インライン送信のみの）ベース画像では何もしません。
func (c *GeminiVariationClient) ReleaseBase(ctx context.Context, base *domain.BaseImage) error {
	if c.cache == nil || base == nil {
		return nil
	}
	key := contentKey(base.Image.Data)
	val, ok := c.cache.Get(cacheKeyFileAPIName + key)
	if !ok {
		return nil
	}
	name, ok := val.(string)
	if !ok {
		return nil
	}
	// 正しいファイル名 (files/xxxx) で削除を実行
	return c.aiClient.DeleteFile(ctx, name)
}

func (c *GeminiVariationClient) generate(ctx context.Context, parts []*genai.Part, seed *int64) (domain.EmbeddedImage, error) {
	opts := gemini.GenerateOptions{
		Seed: seed,
	}

	resp, err := c.aiClient.GenerateWithParts(ctx, c.model, parts, opts)
	if err != nil {
		return domain.EmbeddedImage{}, err
	}

	return parseToImage(resp)
}

// basePart はベース画像を genai.Part に変換します。サイズが閾値を超える場合は
// File API に一度だけアップロードし、以降の呼び出しではキャッシュされた URI を
// 参照します。バッチ1回あたり最大30回の呼び出しで同じバイト列を送り直さないためです。
func (c *GeminiVariationClient) basePart(ctx context.Context, base *domain.BaseImage) *genai.Part {
	data := base.Image.Data
	mimeType := base.Image.MimeType

	if len(data) <= fileAPIUploadThreshold || c.cache == nil {
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
	}

	key := contentKey(data)
	if val, ok := c.cache.Get(cacheKeyFileAPIURI + key); ok {
		if uri, ok := val.(string); ok {
			return &genai.Part{FileData: &genai.FileData{FileURI: uri}}
		}
	}

	uploadData := data
	uploadMime := mimeType
	if UseImageCompression {
		if compressed, err := imgutil.CompressToJPEG(data, ImageCompressionQuality); err == nil {
			uploadData = compressed
			uploadMime = "image/jpeg"
		}
	}

	uri, fileName, err := c.aiClient.UploadFile(ctx, uploadData, uploadMime, base.FileName)
	if err != nil {
		// アップロードに失敗してもインライン送信で続行できる
		slog.WarnContext(ctx, "File APIへのアップロードに失敗しました。インライン送信で続行します", "error", err)
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
	}

	// URI（参照用）と Name（削除用）の両方をキャッシュ
	c.cache.Set(cacheKeyFileAPIURI+key, uri, c.expiration)
	c.cache.Set(cacheKeyFileAPIName+key, fileName, c.expiration)

	return &genai.Part{FileData: &genai.FileData{FileURI: uri}}
}

// toPart は埋め込み画像をインラインの genai.Part に変換します。
func toPart(img domain.EmbeddedImage) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{MIMEType: img.MimeType, Data: img.Data}}
}

// parseToImage は Gemini のレスポンスから画像ペイロードを抽出します。
// 画像が含まれない応答は一律「生成失敗」として扱います。
func parseToImage(resp *gemini.Response) (domain.EmbeddedImage, error) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return domain.EmbeddedImage{}, fmt.Errorf("Geminiからの有効な応答がありませんでした")
	}

	// 現在の仕様では、Geminiからの最初の候補 (Candidate) のみを利用する。
	candidate := resp.RawResponse.Candidates[0]

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return domain.EmbeddedImage{
					Data:     part.InlineData.Data,
					MimeType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}

	// 安全フィルター等によるブロックの確認
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return domain.EmbeddedImage{}, fmt.Errorf("画像生成が異常終了しました (FinishReason: %s)", candidate.FinishReason)
	}

	return domain.EmbeddedImage{}, fmt.Errorf("画像データが見つかりませんでした")
}

func contentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
