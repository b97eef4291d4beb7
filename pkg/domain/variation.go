package domain

import "strings"

// EmbeddedImage は画像バイト列と MIME タイプを持つ自己記述的な画像表現です。
type EmbeddedImage struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

// IsZero は画像データを保持していない場合に true を返します。
func (e EmbeddedImage) IsZero() bool {
	return len(e.Data) == 0
}

// BaseImage はユーザーがアップロードしたベースとなるキャラクターイラストです。
// 新しいアップロードで丸ごと置き換えられ、それまでの生成結果は破棄されます。
type BaseImage struct {
	FileName string
	Image    EmbeddedImage
}

// GeneratedImage は生成結果コレクションに入る1件の成果物です。
// ID は生成順から導出され、セッション中は安定しており、削除後も再利用されません。
type GeneratedImage struct {
	ID     string        `json:"id"`
	Prompt string        `json:"prompt"`
	Image  EmbeddedImage `json:"image"`
}

// SavedTemplate は差分テキストとブランドカラーの名前付きスナップショットです。
// 名前の一意性は保存時に大文字小文字を無視して判定されます。
type SavedTemplate struct {
	Name           string `json:"name"`
	Variations     string `json:"variations"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
}

// BatchProgress は実行中バッチの進捗です。ゼロ値は「実行中でない」を表します。
type BatchProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ParseVariationList は自由入力テキストを差分指示のリストに変換します。
// 改行で分割し、前後の空白を除去し、空行を捨てます。順序は生成順として意味を持ち、
// 重複は許容されます。
func ParseVariationList(text string) []string {
	lines := strings.Split(text, "\n")
	requests := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		requests = append(requests, trimmed)
	}
	return requests
}
