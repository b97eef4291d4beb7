// Package config はサーバーの設定スキーマを定義します。
// 値は config/config.yaml から読み込まれ、${VAR} 形式で環境変数を参照できます。
package config

// Config はアプリケーション全体の設定です。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig は HTTP サーバーの待ち受けと CORS の設定です。
type ServerConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"`
	// MaxUploadMB はベース画像アップロードの上限サイズ（MB）です。
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// GeminiConfig は画像生成クライアントの設定です。
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// CacheTTLMinutes は File API ハンドルのキャッシュ保持時間（分）です。
	// File API 側の保持期限より短くしておきます。
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

// StorageConfig は設定・プリセット・テンプレートの永続化先です。
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}
