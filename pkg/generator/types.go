package generator

const (
	// DefaultModel は画像編集に対応した Gemini のモデル名です。
	DefaultModel = "gemini-2.5-flash-image-preview"

	UseImageCompression     = true
	ImageCompressionQuality = 85

	// fileAPIUploadThreshold を超えるベース画像はインライン送信せず、
	// File API に一度だけアップロードして URI 参照で使い回します。
	fileAPIUploadThreshold = 2 << 20

	cacheKeyFileAPIURI  = "fileapi_uri:"
	cacheKeyFileAPIName = "fileapi_name:"
)
