// Package store は設定・プリセット・テンプレートの永続化ポートを提供します。
// コアのコンポーネントはストレージと直接会話せず、このポート越しにのみ
// 読み書きします。壊れた保存データは欠損として扱い、既定値に戻します。
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// 保存キーは固定の文字列名です。
const (
	keySettings      = "settings"
	keyCustomPresets = "custom_presets"
	keyTemplates     = "templates"
)

// KV は名前付きバイト列の読み書きを抽象化するインターフェースです。
type KV interface {
	// Load はキーに対応するデータを返します。存在しない場合は (nil, nil) です。
	Load(key string) ([]byte, error)
	// Save はキーにデータを保存します。
	Save(key string, data []byte) error
	// Delete はキーを削除します。存在しないキーは no-op です。
	Delete(key string) error
}

// DefaultPresets は組み込みの差分プリセット語彙です。ユーザー定義プリセットは
// この語彙との差分として保存されます。
var DefaultPresets = []string{
	"笑顔",
	"口を開けて笑う",
	"照れ顔",
	"泣き顔",
	"涙目",
	"怒り顔",
	"驚き顔",
	"ジト目",
	"ウインク",
	"目を閉じる",
	"困り顔",
	"キメ顔",
}

// Settings は作業中の入力状態のスナップショットです。
type Settings struct {
	Variations     string `json:"variations"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
}

// Store は KV ポートの上に型付きのレコード操作を提供します。
type Store struct {
	kv KV
}

// New は KV を注入して Store を初期化します。
func New(kv KV) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv is required")
	}
	return &Store{kv: kv}, nil
}

// LoadSettings は作業中設定を読み込みます。欠損・破損時はゼロ値を返します。
func (s *Store) LoadSettings() Settings {
	var settings Settings
	s.loadJSON(keySettings, &settings)
	return settings
}

// SaveSettings は作業中設定を保存します。
func (s *Store) SaveSettings(settings Settings) error {
	return s.saveJSON(keySettings, settings)
}

// CustomPresets はユーザー定義プリセット（組み込み語彙との差分）を返します。
func (s *Store) CustomPresets() []string {
	var presets []string
	s.loadJSON(keyCustomPresets, &presets)
	return presets
}

// Vocabulary は組み込みとユーザー定義を合わせたプリセット語彙を返します。
// batch.PresetStore を満たします。
func (s *Store) Vocabulary() []string {
	custom := s.CustomPresets()
	vocab := make([]string, 0, len(DefaultPresets)+len(custom))
	vocab = append(vocab, DefaultPresets...)
	vocab = append(vocab, custom...)
	return vocab
}

// AddCustom は新しい語句をユーザー定義プリセットに追記します。
// 既知の語句（大文字小文字を無視）は黙ってスキップします。
func (s *Store) AddCustom(phrases []string) error {
	known := make(map[string]struct{})
	for _, p := range s.Vocabulary() {
		known[strings.ToLower(p)] = struct{}{}
	}

	custom := s.CustomPresets()
	added := false
	for _, phrase := range phrases {
		key := strings.ToLower(strings.TrimSpace(phrase))
		if key == "" {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		custom = append(custom, strings.TrimSpace(phrase))
		added = true
	}

	if !added {
		return nil
	}
	return s.saveJSON(keyCustomPresets, custom)
}

// ResetCustomPresets はユーザー定義プリセットをすべて破棄します。
func (s *Store) ResetCustomPresets() error {
	return s.kv.Delete(keyCustomPresets)
}

// Templates は保存済みテンプレートの一覧を返します。
func (s *Store) Templates() []domain.SavedTemplate {
	var templates []domain.SavedTemplate
	s.loadJSON(keyTemplates, &templates)
	return templates
}

// SaveTemplate はテンプレートを保存します。名前の一意性は大文字小文字を
// 無視して判定され、同名の既存テンプレートは上書きされます。
func (s *Store) SaveTemplate(t domain.SavedTemplate) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("テンプレート名が空です")
	}
	t.Name = name

	templates := s.Templates()
	replaced := false
	for i, existing := range templates {
		if strings.EqualFold(existing.Name, name) {
			templates[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		templates = append(templates, t)
	}
	return s.saveJSON(keyTemplates, templates)
}

// LoadTemplate は名前でテンプレートを検索します（大文字小文字を無視）。
func (s *Store) LoadTemplate(name string) (domain.SavedTemplate, bool) {
	for _, t := range s.Templates() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return domain.SavedTemplate{}, false
}

// DeleteTemplate は名前でテンプレートを削除します。
func (s *Store) DeleteTemplate(name string) error {
	templates := s.Templates()
	kept := templates[:0]
	for _, t := range templates {
		if !strings.EqualFold(t.Name, name) {
			kept = append(kept, t)
		}
	}
	return s.saveJSON(keyTemplates, kept)
}

// loadJSON はキーの JSON を v にデコードします。欠損は何もせず、破損は
// 警告ログを残して欠損と同じ扱いにします。致命的エラーにはしません。
func (s *Store) loadJSON(key string, v any) {
	data, err := s.kv.Load(key)
	if err != nil {
		slog.Warn("保存データの読み込みに失敗しました。既定値を使います", "key", key, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("保存データが壊れているため既定値に戻します", "key", key, "error", err)
	}
}

func (s *Store) saveJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s のエンコードに失敗しました: %w", key, err)
	}
	if err := s.kv.Save(key, data); err != nil {
		return fmt.Errorf("%s の保存に失敗しました: %w", key, err)
	}
	return nil
}
