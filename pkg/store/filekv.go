package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// keyPattern は KV のキーとして許可する文字です。キーはそのまま
// ファイル名になるため、パス区切りを含められません。
var keyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// FileKV はキーごとに1つの JSON ファイルを置くシンプルな KV 実装です。
type FileKV struct {
	dir string
}

// NewFileKV は保存ディレクトリを作成して FileKV を初期化します。
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("保存ディレクトリの作成に失敗しました: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

// Load はキーに対応するファイルを読みます。存在しなければ (nil, nil) です。
func (f *FileKV) Load(key string) ([]byte, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save はキーに対応するファイルへ書き込みます。途中で落ちても壊れた
// ファイルを残さないよう、一時ファイル経由でリネームします。
func (f *FileKV) Save(key string, data []byte) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete はキーに対応するファイルを削除します。存在しないキーは no-op です。
func (f *FileKV) Delete(key string) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileKV) pathFor(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("不正なキーです: %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}
