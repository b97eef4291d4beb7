package web

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shouni/chara-varia-kit/pkg/batch"
	"github.com/shouni/chara-varia-kit/pkg/codec"
	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/editor"
	"github.com/shouni/chara-varia-kit/pkg/export"
	"github.com/shouni/chara-varia-kit/pkg/imgutil"
	"github.com/shouni/chara-varia-kit/pkg/palette"
	"github.com/shouni/chara-varia-kit/pkg/store"
)

func (s *Server) health() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(healthResponse{
			Status:    fiber.StatusOK,
			TimeStamp: time.Now().Unix(),
		})
	}
}

// --- ベース画像 ---

func (s *Server) uploadBaseImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "ファイルが添付されていません",
			})
		}
		if fileHeader.Size > int64(s.cfg.MaxUploadMB)*1024*1024 {
			return ctx.Status(fiber.StatusRequestEntityTooLarge).JSON(errorResponse{
				Error:   "file too large",
				Message: fmt.Sprintf("アップロードできるのは%dMBまでです", s.cfg.MaxUploadMB),
			})
		}

		f, err := fileHeader.Open()
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "ファイルを開けませんでした",
			})
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "ファイルを読み取れませんでした",
			})
		}

		base, err := codec.FromBytes(fileHeader.Filename, data)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "このファイルはベース画像として使えません",
			})
		}

		s.installBase(ctx.UserContext(), base)
		return ctx.Status(fiber.StatusOK).JSON(baseImageResponse{
			FileName: base.FileName,
			MimeType: base.Image.MimeType,
			Size:     len(base.Image.Data),
		})
	}
}

func (s *Server) fetchBaseImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if s.fet == nil {
			return ctx.Status(fiber.StatusNotImplemented).JSON(errorResponse{
				Error:   "fetcher not configured",
				Message: "URL からの取り込みは無効になっています",
			})
		}

		var req fetchBaseImageRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}

		base, err := s.fet.Fetch(ctx.UserContext(), req.URL)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "URL からベース画像を取り込めませんでした",
			})
		}

		s.installBase(ctx.UserContext(), base)
		return ctx.Status(fiber.StatusOK).JSON(baseImageResponse{
			FileName: base.FileName,
			MimeType: base.Image.MimeType,
			Size:     len(base.Image.Data),
		})
	}
}

// installBase は新しいベース画像に丸ごと差し替えます。以前のバッチ結果と
// 実行待ちバッチは破棄され、古い File API ハンドルは裏で解放します。
func (s *Server) installBase(ctx context.Context, base *domain.BaseImage) {
	s.mu.Lock()
	old := s.base
	s.base = base
	s.pending = nil
	s.mu.Unlock()

	s.col.ReplaceAll(nil)

	if old != nil {
		go func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := s.gen.ReleaseBase(releaseCtx, old); err != nil {
				slog.Warn("旧ベース画像の解放に失敗しました", "error", err)
			}
		}()
	}
}

func (s *Server) currentBaseImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		s.mu.Lock()
		base := s.base
		s.mu.Unlock()

		if base == nil {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   batch.ErrNoBaseImage.Error(),
				Message: "ベース画像がありません",
			})
		}

		ctx.Set(fiber.HeaderContentType, base.Image.MimeType)
		ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%s", base.FileName))
		ctx.Response().SetBodyRaw(base.Image.Data)
		return nil
	}
}

func (s *Server) suggestPalette() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		s.mu.Lock()
		base := s.base
		s.mu.Unlock()

		if base == nil {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   batch.ErrNoBaseImage.Error(),
				Message: "先にベース画像をアップロードしてください",
			})
		}

		count := ctx.QueryInt("count", 2)
		method := palette.MethodDominant
		if ctx.Query("method") == "kmeans" {
			method = palette.MethodKMeans
		}

		img, err := imgutil.Decode(base.Image.Data)
		if err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Error:   err.Error(),
				Message: "ベース画像をデコードできませんでした",
			})
		}

		colors, err := palette.Suggest(img, count, method)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "カラーパレットを抽出できませんでした",
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(paletteResponse{
			Colors: colors,
			Method: method.String(),
		})
	}
}

// --- バッチ生成 ---

func (s *Server) prepareBatch() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var req prepareBatchRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}

		s.mu.Lock()
		base := s.base
		s.mu.Unlock()

		prepared, err := s.orc.PrepareBatch(base, req.Variations, req.Style)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "バッチを開始できません",
			})
		}

		s.mu.Lock()
		s.pending = prepared
		s.mu.Unlock()

		return ctx.Status(fiber.StatusOK).JSON(prepareBatchResponse{
			Count:             len(prepared.Requests()),
			NeedsConfirmation: prepared.NeedsConfirmation(),
			NewPhrases:        prepared.NewPhrases,
		})
	}
}

func (s *Server) runBatch() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		// 確認ゲートが不要な場合、ボディは省略できる
		var req runBatchRequest
		if len(ctx.Body()) > 0 {
			if err := ctx.BodyParser(&req); err != nil {
				return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
					Error:   err.Error(),
					Message: "リクエストボディが不正です",
				})
			}
		}

		if s.orc.Running() {
			return ctx.Status(fiber.StatusConflict).JSON(errorResponse{
				Error:   batch.ErrRunInProgress.Error(),
				Message: "実行中のバッチが終わるまで待ってください",
			})
		}

		s.mu.Lock()
		prepared := s.pending
		s.pending = nil
		s.mu.Unlock()

		if prepared == nil {
			return ctx.Status(fiber.StatusConflict).JSON(errorResponse{
				Error:   "no prepared batch",
				Message: "先に /api/batch/prepare を呼んでください",
			})
		}

		decision := batch.DecisionSkip
		if req.SavePresets {
			decision = batch.DecisionSavePresets
		}

		// 新しいバッチの開始でコレクションは空から作り直される
		s.col.ReplaceAll(nil)

		go func() {
			obs := &wsObserver{hub: s.hub, col: s.col}
			results, err := prepared.Run(context.Background(), decision, obs)
			if err != nil {
				s.hub.Broadcast(WSEvent{
					Type:      EventBatchFailed,
					Completed: len(results),
					Message:   err.Error(),
				})
				return
			}
			s.hub.Broadcast(WSEvent{Type: EventBatchDone, Completed: len(results)})
		}()

		return ctx.Status(fiber.StatusAccepted).JSON(runBatchResponse{
			Started: true,
			Total:   len(prepared.Requests()),
		})
	}
}

// --- 結果コレクション ---

func (s *Server) listResults() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		entries := s.col.Entries()
		focusID := s.col.FocusID()

		items := make([]resultItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, resultItem{
				ID:       e.ID,
				Prompt:   e.Prompt,
				MimeType: e.Image.MimeType,
				Selected: s.col.IsSelected(e.ID),
				Focused:  e.ID == focusID,
			})
		}
		return ctx.Status(fiber.StatusOK).JSON(items)
	}
}

func (s *Server) resultImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		entry, ok := s.col.Get(ctx.Params("id"))
		if !ok {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}

		ctx.Set(fiber.HeaderContentType, entry.Image.MimeType)
		ctx.Response().SetBodyRaw(entry.Image.Data)
		return nil
	}
}

func (s *Server) deleteResult() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if !s.col.Delete(ctx.Params("id")) {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) selectResult(selected bool) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := ctx.Params("id")
		if _, ok := s.col.Get(id); !ok {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}

		if selected {
			s.col.Select(id)
		} else {
			s.col.Deselect(id)
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) focusResult() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if !s.col.Focus(ctx.Params("id")) {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) currentFocus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := s.col.FocusID()
		if id == "" {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "no focus",
				Message: "フォーカス中の結果はありません",
			})
		}
		return ctx.Status(fiber.StatusOK).JSON(focusResponse{
			ID:    id,
			Index: s.col.FocusIndex(),
		})
	}
}

func (s *Server) clearFocus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		s.col.ClearFocus()
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

// --- 事後編集 ---

// editStatus は編集系の共通エラーマッピングです。対象不在は 404、
// 同一画像への多重編集は 409、生成 API の失敗は 502 を返します。
func (s *Server) editStatus(ctx *fiber.Ctx, err error) error {
	if err == nil {
		return ctx.SendStatus(fiber.StatusNoContent)
	}
	if errors.Is(err, editor.ErrEditInFlight) {
		return ctx.Status(fiber.StatusConflict).JSON(errorResponse{
			Error:   err.Error(),
			Message: "この画像は別の編集を処理中です",
		})
	}
	return ctx.Status(fiber.StatusBadGateway).JSON(errorResponse{
		Error:   err.Error(),
		Message: "編集に失敗しました。画像は元のまま残っています",
	})
}

func (s *Server) editRemoveBackground() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := ctx.Params("id")
		if _, ok := s.col.Get(id); !ok {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}
		return s.editStatus(ctx, s.edit.RemoveBackground(ctx.UserContext(), id))
	}
}

func (s *Server) editOutline() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := ctx.Params("id")
		if _, ok := s.col.Get(id); !ok {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}

		var req outlineRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}

		return s.editStatus(ctx, s.edit.AddOutline(ctx.UserContext(), id, req.Color, req.WidthPx))
	}
}

func (s *Server) editText() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := ctx.Params("id")
		if _, ok := s.col.Get(id); !ok {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定された結果は存在しません",
			})
		}

		var req textOverlayRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}

		return s.editStatus(ctx, s.edit.OverlayText(id, editor.TextOverlayOptions{
			Text:       req.Text,
			Anchor:     editor.TextAnchor(req.Anchor),
			FontSizePx: req.FontSizePx,
			ColorHex:   req.Color,
			Underline:  req.Underline,
		}))
	}
}

// --- 設定・プリセット・テンプレート ---

func (s *Server) getSettings() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(s.st.LoadSettings())
	}
}

func (s *Server) putSettings() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var settings store.Settings
		if err := ctx.BodyParser(&settings); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}
		if err := s.st.SaveSettings(settings); err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Error:   err.Error(),
				Message: "設定を保存できませんでした",
			})
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) listPresets() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(presetsResponse{
			Defaults: store.DefaultPresets,
			Custom:   s.st.CustomPresets(),
		})
	}
}

func (s *Server) resetPresets() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if err := s.st.ResetCustomPresets(); err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Error:   err.Error(),
				Message: "プリセットをリセットできませんでした",
			})
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) listTemplates() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(s.st.Templates())
	}
}

func (s *Server) saveTemplate() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var tpl domain.SavedTemplate
		if err := ctx.BodyParser(&tpl); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}
		if strings.TrimSpace(tpl.Name) == "" {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   "name is required",
				Message: "テンプレート名を入力してください",
			})
		}
		if err := s.st.SaveTemplate(tpl); err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Error:   err.Error(),
				Message: "テンプレートを保存できませんでした",
			})
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) getTemplate() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tpl, ok := s.st.LoadTemplate(ctx.Params("name"))
		if !ok {
			return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error:   "not found",
				Message: "指定されたテンプレートは存在しません",
			})
		}
		return ctx.Status(fiber.StatusOK).JSON(tpl)
	}
}

func (s *Server) deleteTemplate() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if err := s.st.DeleteTemplate(ctx.Params("name")); err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Error:   err.Error(),
				Message: "テンプレートを削除できませんでした",
			})
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

// --- エクスポート ---

// selectedOrError は選択中のエントリを返します。選択が空なら 400 を書き込み、
// nil を返します。
func (s *Server) selectedOrError(ctx *fiber.Ctx) []domain.GeneratedImage {
	selected := s.col.SelectedEntries()
	if len(selected) == 0 {
		_ = ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error:   "nothing selected",
			Message: "エクスポートする画像が選択されていません",
		})
		return nil
	}
	return selected
}

func (s *Server) exportZip() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		selected := s.selectedOrError(ctx)
		if selected == nil {
			return nil
		}

		data, err := export.Archive(selected)
		if err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Error:   err.Error(),
				Message: "ZIP の作成に失敗しました",
			})
		}

		ctx.Set(fiber.HeaderContentType, "application/zip")
		ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="variations.zip"`)
		ctx.Response().SetBodyRaw(data)
		return nil
	}
}

func (s *Server) exportSpriteSheet() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var req spriteSheetRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "リクエストボディが不正です",
			})
		}

		selected := s.selectedOrError(ctx)
		if selected == nil {
			return nil
		}

		sheet, err := export.SpriteSheet(embeddedImages(selected), req.FrameW, req.FrameH, req.MaxSheetWidth)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "スプライトシートの作成に失敗しました",
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(spriteSheetResponse{
			PNGBase64: base64.StdEncoding.EncodeToString(sheet.PNG),
			Frames:    sheet.Frames,
			Columns:   sheet.Columns,
			Rows:      sheet.Rows,
			Width:     sheet.Width,
			Height:    sheet.Height,
		})
	}
}

func (s *Server) exportGIF() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		selected := s.selectedOrError(ctx)
		if selected == nil {
			return nil
		}

		frameW := ctx.QueryInt("frame_w", 256)
		frameH := ctx.QueryInt("frame_h", 256)
		fps := ctx.QueryInt("fps", 4)

		data, err := export.AnimatedGIF(embeddedImages(selected), frameW, frameH, fps)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error:   err.Error(),
				Message: "GIF の作成に失敗しました",
			})
		}

		ctx.Set(fiber.HeaderContentType, "image/gif")
		ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="variations.gif"`)
		ctx.Response().SetBodyRaw(data)
		return nil
	}
}

func embeddedImages(entries []domain.GeneratedImage) []domain.EmbeddedImage {
	images := make([]domain.EmbeddedImage, 0, len(entries))
	for _, e := range entries {
		images = append(images, e.Image)
	}
	return images
}
