// Package collection はセッション中の生成結果コレクションを所有します。
// 実行中のバッチからの追加、事後編集による差し替え、削除、エクスポート用の
// 選択集合、および詳細ビューのフォーカスを一元管理します。
package collection

import (
	"slices"
	"sync"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// Manager は GeneratedImage の順序付きコレクションです。
// エントリの所有権は Manager が持ち、外部には常にコピーを渡します。
// フォーカスは独立したインデックスではなく「現在の並びにおける ID の位置」
// として導出されるため、変異後にずれた値を指すことがありません。
type Manager struct {
	mu       sync.Mutex
	entries  []domain.GeneratedImage
	selected map[string]struct{}
	focusID  string
}

// NewManager は空のコレクションを返します。
func NewManager() *Manager {
	return &Manager{
		selected: make(map[string]struct{}),
	}
}

// Append は生成順を保ってエントリを末尾に追加します。バッチ実行中の
// オーケストレーターからのみ使われます。追加されたエントリは選択済みになります
// （バッチ完了直後は全件選択が既定のため）。
func (m *Manager) Append(img domain.GeneratedImage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, img)
	m.selected[img.ID] = struct{}{}
}

// ReplaceAll はコレクションを丸ごと置き換えます。新しいバッチの開始時に
// 使われ、選択集合は全件選択にリセットされ、フォーカスは解除されます。
func (m *Manager) ReplaceAll(list []domain.GeneratedImage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = slices.Clone(list)
	m.selected = make(map[string]struct{}, len(list))
	for _, img := range list {
		m.selected[img.ID] = struct{}{}
	}
	m.focusID = ""
}

// Entries は現在のエントリのコピーを表示順で返します。
func (m *Manager) Entries() []domain.GeneratedImage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Len はエントリ数を返します。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Get は ID でエントリを検索します。
func (m *Manager) Get(id string) (domain.GeneratedImage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexOf(id); i >= 0 {
		return m.entries[i], true
	}
	return domain.GeneratedImage{}, false
}

// Delete は ID で1件削除します。削除したエントリが選択されていれば選択集合
// からも外れます。フォーカス中のエントリを削除した場合、フォーカスは表示順で
// 近傍の有効なエントリへ移動し（末尾削除なら新しい末尾へクランプ）、
// コレクションが空になればフォーカスは解除されます。
// 存在しない ID は安全な no-op です。
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return false
	}

	m.entries = slices.Delete(m.entries, i, i+1)
	delete(m.selected, id)

	if m.focusID == id {
		if len(m.entries) == 0 {
			m.focusID = ""
		} else {
			next := min(i, len(m.entries)-1)
			m.focusID = m.entries[next].ID
		}
	}
	return true
}

// UpdateInPlace は ID で特定したエントリの画像ペイロードのみを差し替えます。
// 識別子・元プロンプト・並び順は保たれます。背景削除・縁取り・文字入れの
// 各編集が使います。すでに削除された ID は安全な no-op です。
func (m *Manager) UpdateInPlace(id string, img domain.EmbeddedImage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.entries[i].Image = img
	return true
}

// Select は ID を選択集合に加えます。存在しない ID は no-op です。
func (m *Manager) Select(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(id) >= 0 {
		m.selected[id] = struct{}{}
	}
}

// Deselect は ID を選択集合から外します。
func (m *Manager) Deselect(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.selected, id)
}

// IsSelected は ID が選択されているかを返します。
func (m *Manager) IsSelected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.selected[id]
	return ok
}

// SelectedEntries は選択中のエントリを表示順で返します。
func (m *Manager) SelectedEntries() []domain.GeneratedImage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.GeneratedImage, 0, len(m.selected))
	for _, img := range m.entries {
		if _, ok := m.selected[img.ID]; ok {
			out = append(out, img)
		}
	}
	return out
}

// Focus は詳細ビューのフォーカスを ID に設定します。存在しない ID では
// 変更せず false を返します。
func (m *Manager) Focus(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(id) < 0 {
		return false
	}
	m.focusID = id
	return true
}

// ClearFocus は詳細ビューのフォーカスを解除します。
func (m *Manager) ClearFocus() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focusID = ""
}

// FocusID はフォーカス中のエントリ ID を返します。フォーカスなしは空文字列です。
func (m *Manager) FocusID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focusID
}

// FocusIndex は現在の並びにおけるフォーカス位置を導出して返します。
// フォーカスなしは -1 です。
func (m *Manager) FocusIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.focusID == "" {
		return -1
	}
	return m.indexOf(m.focusID)
}

func (m *Manager) indexOf(id string) int {
	return slices.IndexFunc(m.entries, func(img domain.GeneratedImage) bool {
		return img.ID == id
	})
}
