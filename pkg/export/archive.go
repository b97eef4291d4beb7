// Package export は選択中の生成結果から配布用アーティファクト
// （ZIPアーカイブ・スプライトシート・ループGIF）を組み立てます。
package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// Archive はエントリを (ファイル名, 画像バイト列) の組として ZIP にまとめます。
// ファイル名は生成順の連番と元プロンプト由来のスラッグから作ります。
func Archive(entries []domain.GeneratedImage) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("エクスポート対象がありません")
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	for i, entry := range entries {
		name := fmt.Sprintf("%02d_%s%s", i+1, slug(entry.Prompt), extFor(entry.Image.MimeType))
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("アーカイブの作成に失敗しました: %w", err)
		}
		if _, err := w.Write(entry.Image.Data); err != nil {
			return nil, fmt.Errorf("アーカイブへの書き込みに失敗しました: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// slug はプロンプトをファイル名に使える形へ丸めます。
func slug(prompt string) string {
	const maxRunes = 40

	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\t':
			return '_'
		}
		return r
	}, strings.TrimSpace(prompt))

	runes := []rune(mapped)
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	if len(runes) == 0 {
		return "variation"
	}
	return string(runes)
}

func extFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
