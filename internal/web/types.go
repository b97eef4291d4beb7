package web

import (
	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/export"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status    int   `json:"status"`
	TimeStamp int64 `json:"timestamp"`
}

type baseImageResponse struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type fetchBaseImageRequest struct {
	URL string `json:"url"`
}

type paletteResponse struct {
	Colors []string `json:"colors"`
	Method string   `json:"method"`
}

type prepareBatchRequest struct {
	Variations string                  `json:"variations"`
	Style      domain.StyleConstraints `json:"style"`
}

type prepareBatchResponse struct {
	Count             int      `json:"count"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	NewPhrases        []string `json:"new_phrases,omitempty"`
}

type runBatchRequest struct {
	SavePresets bool `json:"save_presets"`
}

type runBatchResponse struct {
	Started bool `json:"started"`
	Total   int  `json:"total"`
}

// resultItem は一覧用のメタデータです。画像本体は /api/results/:id/image で
// 個別に取得します。
type resultItem struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	MimeType string `json:"mime_type"`
	Selected bool   `json:"selected"`
	Focused  bool   `json:"focused"`
}

type focusResponse struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

type outlineRequest struct {
	Color   string `json:"color"`
	WidthPx int    `json:"width_px"`
}

type textOverlayRequest struct {
	Text       string  `json:"text"`
	Anchor     string  `json:"anchor"`
	FontSizePx float64 `json:"font_size_px"`
	Color      string  `json:"color"`
	Underline  bool    `json:"underline"`
}

type presetsResponse struct {
	Defaults []string `json:"defaults"`
	Custom   []string `json:"custom"`
}

type spriteSheetRequest struct {
	FrameW        int `json:"frame_w"`
	FrameH        int `json:"frame_h"`
	MaxSheetWidth int `json:"max_sheet_width"`
}

type spriteSheetResponse struct {
	PNGBase64 string         `json:"png_base64"`
	Frames    []export.Frame `json:"frames"`
	Columns   int            `json:"columns"`
	Rows      int            `json:"rows"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
}
