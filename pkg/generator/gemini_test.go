package generator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shouni/go-gemini-client/pkg/gemini"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

func smallBase() *domain.BaseImage {
	return &domain.BaseImage{
		FileName: "chara.png",
		Image:    domain.EmbeddedImage{Data: []byte("tiny-png-bytes"), MimeType: "image/png"},
	}
}

func TestNewGeminiVariationClient(t *testing.T) {
	t.Run("aiClientがnilならエラーを返す", func(t *testing.T) {
		_, err := NewGeminiVariationClient(nil, "", nil, 0)
		assert.Error(t, err)
	})

	t.Run("モデル名未指定なら既定モデルを使う", func(t *testing.T) {
		c, err := NewGeminiVariationClient(&mockAIClient{}, "", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultModel, c.model)
	})
}

func TestGeminiVariationClient_SynthesizeVariation(t *testing.T) {
	ctx := context.Background()

	t.Run("プロンプトとベース画像の2パーツが送信される", func(t *testing.T) {
		ai := &mockAIClient{}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		out, err := c.SynthesizeVariation(ctx, smallBase(), "笑顔", domain.DefaultStyleConstraints())

		require.NoError(t, err)
		assert.Equal(t, "image/png", out.MimeType)
		require.Len(t, ai.lastParts, 2)
		assert.Contains(t, ai.lastParts[0].Text, "笑顔")
		require.NotNil(t, ai.lastParts[1].InlineData)
		assert.Equal(t, "image/png", ai.lastParts[1].InlineData.MIMEType)
	})

	t.Run("固定シードがそのままAIクライアントに渡されるのだ", func(t *testing.T) {
		var seed int64 = 777
		style := domain.DefaultStyleConstraints()
		style.Seed = &seed

		ai := &mockAIClient{}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		_, err := c.SynthesizeVariation(ctx, smallBase(), "ウインク", style)

		require.NoError(t, err)
		require.NotNil(t, ai.lastOpts.Seed)
		assert.Equal(t, seed, *ai.lastOpts.Seed)
	})

	t.Run("画像を含まない応答は生成失敗として扱う", func(t *testing.T) {
		ai := &mockAIClient{
			generateFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
				return emptyResponse(), nil
			},
		}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		_, err := c.SynthesizeVariation(ctx, smallBase(), "泣き顔", domain.DefaultStyleConstraints())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "差分生成エラー")
	})

	t.Run("通信エラーは差分生成エラーとしてラップされる", func(t *testing.T) {
		wantErr := errors.New("rate limited")
		ai := &mockAIClient{
			generateFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
				return nil, wantErr
			},
		}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		_, err := c.SynthesizeVariation(ctx, smallBase(), "怒り顔", domain.DefaultStyleConstraints())

		assert.ErrorIs(t, err, wantErr)
	})
}

func TestGeminiVariationClient_FileAPISession(t *testing.T) {
	ctx := context.Background()
	// 閾値超えの巨大ベース画像（非圧縮のまま扱わせるため不正なPNGデータで良い）
	bigBase := &domain.BaseImage{
		FileName: "big.png",
		Image: domain.EmbeddedImage{
			Data:     bytes.Repeat([]byte{0xAB}, fileAPIUploadThreshold+1),
			MimeType: "image/png",
		},
	}

	t.Run("閾値超えの画像は一度だけアップロードされURIで使い回される", func(t *testing.T) {
		ai := &mockAIClient{}
		cache := newMockCache()
		c, _ := NewGeminiVariationClient(ai, "test-model", cache, time.Hour)

		_, err := c.SynthesizeVariation(ctx, bigBase, "笑顔", domain.DefaultStyleConstraints())
		require.NoError(t, err)
		assert.True(t, ai.uploadCalled)
		require.NotNil(t, ai.lastParts[1].FileData)

		// 2回目はキャッシュヒットし、再アップロードされない
		ai.uploadCalled = false
		_, err = c.SynthesizeVariation(ctx, bigBase, "ウインク", domain.DefaultStyleConstraints())
		require.NoError(t, err)
		assert.False(t, ai.uploadCalled, "second call should reuse the cached File API URI")
	})

	t.Run("アップロード失敗時はインライン送信にフォールバックする", func(t *testing.T) {
		ai := &mockAIClient{
			uploadFunc: func(ctx context.Context, data []byte, mimeType, displayName string) (string, string, error) {
				return "", "", errors.New("upload failed")
			},
		}
		c, _ := NewGeminiVariationClient(ai, "test-model", newMockCache(), time.Hour)

		_, err := c.SynthesizeVariation(ctx, bigBase, "笑顔", domain.DefaultStyleConstraints())

		require.NoError(t, err)
		assert.NotNil(t, ai.lastParts[1].InlineData)
	})

	t.Run("ReleaseBaseはキャッシュされた名前で削除する", func(t *testing.T) {
		ai := &mockAIClient{}
		cache := newMockCache()
		c, _ := NewGeminiVariationClient(ai, "test-model", cache, time.Hour)

		_, err := c.SynthesizeVariation(ctx, bigBase, "笑顔", domain.DefaultStyleConstraints())
		require.NoError(t, err)

		require.NoError(t, c.ReleaseBase(ctx, bigBase))
		assert.True(t, ai.deleteCalled)
		assert.Equal(t, "files/new-file-id", ai.lastFileName)
	})

	t.Run("アップロードされていないベース画像のReleaseBaseは何もしない", func(t *testing.T) {
		ai := &mockAIClient{}
		c, _ := NewGeminiVariationClient(ai, "test-model", newMockCache(), time.Hour)

		require.NoError(t, c.ReleaseBase(ctx, smallBase()))
		assert.False(t, ai.deleteCalled)
	})
}

func TestGeminiVariationClient_Edits(t *testing.T) {
	ctx := context.Background()
	img := domain.EmbeddedImage{Data: []byte("png-bytes"), MimeType: "image/png"}

	t.Run("RemoveBackgroundは編集対象をインラインで送信する", func(t *testing.T) {
		ai := &mockAIClient{}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		out, err := c.RemoveBackground(ctx, img)

		require.NoError(t, err)
		assert.False(t, out.IsZero())
		require.Len(t, ai.lastParts, 2)
		assert.Contains(t, ai.lastParts[0].Text, "background")
	})

	t.Run("AddOutlineは色と幅をプロンプトに含める", func(t *testing.T) {
		ai := &mockAIClient{}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		_, err := c.AddOutline(ctx, img, "#ff0000", 8)

		require.NoError(t, err)
		assert.Contains(t, ai.lastParts[0].Text, "#ff0000")
		assert.Contains(t, ai.lastParts[0].Text, "8 pixels")
	})

	t.Run("編集失敗は操作名つきでラップされる", func(t *testing.T) {
		ai := &mockAIClient{
			generateFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
				return emptyResponse(), nil
			},
		}
		c, _ := NewGeminiVariationClient(ai, "test-model", nil, 0)

		_, err := c.RemoveBackground(ctx, img)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "背景削除エラー"))

		_, err = c.AddOutline(ctx, img, "#000000", 4)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "縁取りエラー")
	})
}
