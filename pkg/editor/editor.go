// Package editor は生成済み画像1件に対する事後編集（背景削除・縁取り・文字入れ）
// を提供します。各編集は対象エントリにのみ作用し、失敗してもコレクションの
// 他のエントリや実行中のバッチに影響しません。
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shouni/chara-varia-kit/pkg/collection"
	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// ErrEditInFlight は同じ画像に対する編集の同時実行を表します。
// 画像ごとに排他で、異なる画像は独立に編集できます。
var ErrEditInFlight = errors.New("この画像は別の編集を実行中です")

// RemoteTransformer はエディターから見たリモート画像変換です。
type RemoteTransformer interface {
	RemoveBackground(ctx context.Context, img domain.EmbeddedImage) (domain.EmbeddedImage, error)
	AddOutline(ctx context.Context, img domain.EmbeddedImage, outlineColor string, outlineWidthPx int) (domain.EmbeddedImage, error)
}

// Editor はコレクション内の1エントリに対する編集を逐次化して適用します。
type Editor struct {
	col    *collection.Manager
	client RemoteTransformer

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New は依存関係を注入して Editor を初期化します。
func New(col *collection.Manager, client RemoteTransformer) (*Editor, error) {
	if col == nil {
		return nil, fmt.Errorf("collection manager is required")
	}
	if client == nil {
		return nil, fmt.Errorf("remote transformer is required")
	}
	return &Editor{
		col:      col,
		client:   client,
		inFlight: make(map[string]struct{}),
	}, nil
}

// RemoveBackground は対象画像の背景をリモート変換で透過にし、成功時のみ
// ペイロードを差し替えます。削除済みの ID は安全な no-op です。
func (e *Editor) RemoveBackground(ctx context.Context, id string) error {
	return e.applyRemote(ctx, id, "背景削除", func(ctx context.Context, img domain.EmbeddedImage) (domain.EmbeddedImage, error) {
		return e.client.RemoveBackground(ctx, img)
	})
}

// AddOutline は対象画像に縁取りを付けます。
func (e *Editor) AddOutline(ctx context.Context, id, outlineColor string, outlineWidthPx int) error {
	return e.applyRemote(ctx, id, "縁取り", func(ctx context.Context, img domain.EmbeddedImage) (domain.EmbeddedImage, error) {
		return e.client.AddOutline(ctx, img, outlineColor, outlineWidthPx)
	})
}

// OverlayText は対象画像にテキストをローカル合成で焼き込みます。
// 空白のみのテキストはエラーではなく no-op です。
func (e *Editor) OverlayText(id string, opts TextOverlayOptions) error {
	if strings.TrimSpace(opts.Text) == "" {
		return nil
	}

	release, err := e.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	entry, ok := e.col.Get(id)
	if !ok {
		return nil
	}

	edited, err := renderTextOverlay(entry.Image, opts)
	if err != nil {
		return fmt.Errorf("文字入れに失敗しました: %w", err)
	}

	e.col.UpdateInPlace(id, edited)
	return nil
}

func (e *Editor) applyRemote(ctx context.Context, id, operation string, transform func(context.Context, domain.EmbeddedImage) (domain.EmbeddedImage, error)) error {
	release, err := e.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	entry, ok := e.col.Get(id)
	if !ok {
		// 編集開始前に削除されていた場合は対象なしの no-op
		return nil
	}

	edited, err := transform(ctx, entry.Image)
	if err != nil {
		// 失敗時はエントリに一切触れない
		return fmt.Errorf("%sに失敗しました: %w", operation, err)
	}

	// 変換中に削除されていれば UpdateInPlace 側が no-op にする
	e.col.UpdateInPlace(id, edited)
	return nil
}

// acquire は画像単位の編集ロックを取ります。取れなければ ErrEditInFlight です。
func (e *Editor) acquire(id string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[id]; busy {
		return nil, ErrEditInFlight
	}
	e.inFlight[id] = struct{}{}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.inFlight, id)
	}, nil
}
