package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/chara-varia-kit/pkg/collection"
	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// --- Mocks ---

type mockTransformer struct {
	mu        sync.Mutex
	bgCalls   int
	olCalls   int
	err       error
	startedCh chan struct{} // 最初の変換開始を通知する
	blockCh   chan struct{} // 設定されていると変換が完了待ちになる
	lastColor string
	lastWidth int
}

func (m *mockTransformer) RemoveBackground(ctx context.Context, img domain.EmbeddedImage) (domain.EmbeddedImage, error) {
	m.mu.Lock()
	m.bgCalls++
	if m.bgCalls == 1 && m.startedCh != nil {
		close(m.startedCh)
	}
	block := m.blockCh
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if m.err != nil {
		return domain.EmbeddedImage{}, m.err
	}
	return domain.EmbeddedImage{Data: []byte("no-bg"), MimeType: "image/png"}, nil
}

func (m *mockTransformer) AddOutline(ctx context.Context, img domain.EmbeddedImage, outlineColor string, outlineWidthPx int) (domain.EmbeddedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.olCalls++
	m.lastColor = outlineColor
	m.lastWidth = outlineWidthPx
	if m.err != nil {
		return domain.EmbeddedImage{}, m.err
	}
	return domain.EmbeddedImage{Data: []byte("outlined"), MimeType: "image/png"}, nil
}

func pngImage(t *testing.T, w, h int, c color.Color) domain.EmbeddedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return domain.EmbeddedImage{Data: buf.Bytes(), MimeType: "image/png"}
}

func setup(t *testing.T) (*collection.Manager, *mockTransformer, *Editor) {
	t.Helper()
	col := collection.NewManager()
	col.Append(domain.GeneratedImage{ID: "v-1", Prompt: "笑顔", Image: pngImage(t, 64, 64, color.White)})
	col.Append(domain.GeneratedImage{ID: "v-2", Prompt: "ウインク", Image: pngImage(t, 64, 64, color.Black)})

	client := &mockTransformer{}
	e, err := New(col, client)
	require.NoError(t, err)
	return col, client, e
}

// --- Tests ---

func TestEditor_RemoveBackground(t *testing.T) {
	ctx := context.Background()

	t.Run("成功時は対象のペイロードだけが差し替わる", func(t *testing.T) {
		col, _, e := setup(t)

		require.NoError(t, e.RemoveBackground(ctx, "v-1"))

		got, _ := col.Get("v-1")
		assert.Equal(t, []byte("no-bg"), got.Image.Data)
		assert.Equal(t, "笑顔", got.Prompt)

		other, _ := col.Get("v-2")
		assert.NotEqual(t, []byte("no-bg"), other.Image.Data)
	})

	t.Run("失敗時はエントリが無傷のまま操作名つきエラーになる", func(t *testing.T) {
		col, client, e := setup(t)
		client.err = errors.New("api down")
		before, _ := col.Get("v-1")

		err := e.RemoveBackground(ctx, "v-1")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "背景削除")
		after, _ := col.Get("v-1")
		assert.Equal(t, before.Image.Data, after.Image.Data)
	})

	t.Run("削除済みIDへの編集はエラーではなくno-opなのだ", func(t *testing.T) {
		col, client, e := setup(t)
		col.Delete("v-1")

		require.NoError(t, e.RemoveBackground(ctx, "v-1"))
		assert.Equal(t, 0, client.bgCalls)
	})
}

func TestEditor_AddOutline(t *testing.T) {
	ctx := context.Background()

	t.Run("色と幅がそのままクライアントに渡る", func(t *testing.T) {
		col, client, e := setup(t)

		require.NoError(t, e.AddOutline(ctx, "v-2", "#ff00ff", 6))

		assert.Equal(t, "#ff00ff", client.lastColor)
		assert.Equal(t, 6, client.lastWidth)
		got, _ := col.Get("v-2")
		assert.Equal(t, []byte("outlined"), got.Image.Data)
	})
}

func TestEditor_InFlightGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("同じ画像への編集は実行中に弾かれ、別の画像は通る", func(t *testing.T) {
		_, client, e := setup(t)
		client.startedCh = make(chan struct{})
		client.blockCh = make(chan struct{})

		done := make(chan error, 1)
		go func() {
			done <- e.RemoveBackground(ctx, "v-1")
		}()

		// 1件目の変換が始まるのを待つ
		<-client.startedCh

		assert.ErrorIs(t, e.OverlayText("v-1", TextOverlayOptions{Text: "GOODS"}), ErrEditInFlight)
		assert.NoError(t, e.AddOutline(ctx, "v-2", "#000000", 2))

		close(client.blockCh)
		require.NoError(t, <-done)

		// 完了後は同じ画像も再び編集できる
		assert.NoError(t, e.RemoveBackground(ctx, "v-1"))
	})
}

func TestEditor_OverlayText(t *testing.T) {
	t.Run("空白のみのテキストはno-opで成功する", func(t *testing.T) {
		col, _, e := setup(t)
		before, _ := col.Get("v-1")

		require.NoError(t, e.OverlayText("v-1", TextOverlayOptions{Text: "   "}))

		after, _ := col.Get("v-1")
		assert.Equal(t, before.Image.Data, after.Image.Data)
	})

	t.Run("文字入れ後もID・プロンプト・サイズが保たれる", func(t *testing.T) {
		col, _, e := setup(t)

		require.NoError(t, e.OverlayText("v-1", TextOverlayOptions{
			Text:      "SALE",
			Anchor:    AnchorBottom,
			Underline: true,
		}))

		got, ok := col.Get("v-1")
		require.True(t, ok)
		assert.Equal(t, "笑顔", got.Prompt)
		assert.Equal(t, "image/png", got.Image.MimeType)

		decoded, _, err := image.Decode(bytes.NewReader(got.Image.Data))
		require.NoError(t, err)
		assert.Equal(t, 64, decoded.Bounds().Dx())
		assert.Equal(t, 64, decoded.Bounds().Dy())
	})

	t.Run("各アンカーで描画がキャンバス内に収まる", func(t *testing.T) {
		for _, anchor := range []TextAnchor{AnchorTop, AnchorCenter, AnchorBottom} {
			out, err := renderTextOverlay(pngImage(t, 120, 80, color.White), TextOverlayOptions{
				Text:   "A",
				Anchor: anchor,
			})
			require.NoError(t, err, "anchor %s", anchor)
			decoded, _, err := image.Decode(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, 120, decoded.Bounds().Dx())
		}
	})

	t.Run("削除済みIDへの文字入れはno-op", func(t *testing.T) {
		col, _, e := setup(t)
		col.Delete("v-2")
		assert.NoError(t, e.OverlayText("v-2", TextOverlayOptions{Text: "X"}))
	})
}
