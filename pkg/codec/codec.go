// Package codec はローカルファイルや URL と、自己記述的な埋め込み画像表現
// (domain.EmbeddedImage) との間の変換を担当します。
package codec

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

var (
	// ErrUnsupportedFileType は許可されていない画像形式のアップロードを表します。
	ErrUnsupportedFileType = errors.New("PNG / JPEG / WebP 以外の画像はアップロードできません")
	// ErrPhotoLikeFilename はカメラ写真と推定されるファイル名の拒否を表します。
	ErrPhotoLikeFilename = errors.New("実在の人物写真と思われるファイルはアップロードできません")
)

// allowedMimeTypes はベース画像として受け付ける MIME タイプの許可リストです。
var allowedMimeTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// photoFilePattern はデジカメやスマートフォンのカメラロール由来の
// ファイル名（IMG_1234.jpg, DSC0001.JPG, PXL_2023... など）を検出します。
var photoFilePattern = regexp.MustCompile(`(?i)^(img|dsc[fn]?|pxl|mvimg|photo|portrait|selfie|写真)[-_ ]?\d`)

// FromBytes はアップロードされたファイルのバイト列を検証して BaseImage を構築します。
// MIME タイプは内容から判定し、png / jpeg / webp のみを許可します。
func FromBytes(fileName string, data []byte) (*domain.BaseImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("ファイルが空です: %s", fileName)
	}
	if photoFilePattern.MatchString(fileName) {
		return nil, ErrPhotoLikeFilename
	}

	mimeType := http.DetectContentType(data)
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return nil, fmt.Errorf("%w (検出: %s)", ErrUnsupportedFileType, mimeType)
	}

	return &domain.BaseImage{
		FileName: fileName,
		Image: domain.EmbeddedImage{
			Data:     data,
			MimeType: mimeType,
		},
	}, nil
}
