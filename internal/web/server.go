// Package web はブラウザ UI 向けの HTTP / WebSocket API を提供します。
// ベース画像・実行待ちバッチといったセッション状態はここが握り、
// 生成・コレクション・編集・永続化の各コンポーネントへ委譲します。
package web

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/shouni/chara-varia-kit/internal/config"
	"github.com/shouni/chara-varia-kit/pkg/batch"
	"github.com/shouni/chara-varia-kit/pkg/codec"
	"github.com/shouni/chara-varia-kit/pkg/collection"
	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/chara-varia-kit/pkg/editor"
	"github.com/shouni/chara-varia-kit/pkg/generator"
	"github.com/shouni/chara-varia-kit/pkg/store"
)

// Deps はサーバーが委譲する先のコンポーネント群です。
type Deps struct {
	Generator    generator.VariationGenerator
	Orchestrator *batch.Orchestrator
	Collection   *collection.Manager
	Editor       *editor.Editor
	Store        *store.Store
	// Fetcher は URL 指定でのベース画像取り込みに使います。nil 可。
	Fetcher *codec.Fetcher
}

// Server は fiber アプリと単一セッションの状態を束ねます。
type Server struct {
	app *fiber.App
	hub *Hub
	cfg config.ServerConfig

	gen  generator.VariationGenerator
	orc  *batch.Orchestrator
	col  *collection.Manager
	edit *editor.Editor
	st   *store.Store
	fet  *codec.Fetcher

	mu      sync.Mutex
	base    *domain.BaseImage
	pending *batch.PreparedBatch
}

// NewServer は依存関係を注入してサーバーを初期化します。
func NewServer(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if deps.Collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if deps.Editor == nil {
		return nil, fmt.Errorf("editor is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			BodyLimit: (cfg.MaxUploadMB + 1) * 1024 * 1024,
		}),
		hub:  NewHub(),
		cfg:  cfg,
		gen:  deps.Generator,
		orc:  deps.Orchestrator,
		col:  deps.Collection,
		edit: deps.Editor,
		st:   deps.Store,
		fet:  deps.Fetcher,
	}

	allowCredentials := cfg.AllowedOrigins != "*"
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: allowCredentials,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,Accept,Origin",
	}))

	s.addRoutes()
	return s, nil
}

// Start はブロックして待ち受けます。
func (s *Server) Start() error {
	return s.app.Listen(fmt.Sprint(":", s.cfg.Port))
}

// Shutdown は WebSocket を切断してからサーバーを止めます。
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) addRoutes() {
	s.app.Add("GET", "/health", s.health())

	// ベース画像
	s.app.Add("POST", "/api/base-image", s.uploadBaseImage())
	s.app.Add("POST", "/api/base-image/url", s.fetchBaseImage())
	s.app.Add("GET", "/api/base-image", s.currentBaseImage())
	s.app.Add("GET", "/api/base-image/palette", s.suggestPalette())

	// バッチ生成
	s.app.Add("POST", "/api/batch/prepare", s.prepareBatch())
	s.app.Add("POST", "/api/batch/run", s.runBatch())

	// 結果コレクション
	s.app.Add("GET", "/api/results", s.listResults())
	s.app.Add("GET", "/api/results/:id/image", s.resultImage())
	s.app.Add("DELETE", "/api/results/:id", s.deleteResult())
	s.app.Add("POST", "/api/results/:id/select", s.selectResult(true))
	s.app.Add("POST", "/api/results/:id/deselect", s.selectResult(false))
	s.app.Add("POST", "/api/results/:id/focus", s.focusResult())
	s.app.Add("GET", "/api/focus", s.currentFocus())
	s.app.Add("DELETE", "/api/focus", s.clearFocus())

	// 事後編集
	s.app.Add("POST", "/api/results/:id/remove-background", s.editRemoveBackground())
	s.app.Add("POST", "/api/results/:id/outline", s.editOutline())
	s.app.Add("POST", "/api/results/:id/text", s.editText())

	// 設定・プリセット・テンプレート
	s.app.Add("GET", "/api/settings", s.getSettings())
	s.app.Add("PUT", "/api/settings", s.putSettings())
	s.app.Add("GET", "/api/presets", s.listPresets())
	s.app.Add("DELETE", "/api/presets/custom", s.resetPresets())
	s.app.Add("GET", "/api/templates", s.listTemplates())
	s.app.Add("POST", "/api/templates", s.saveTemplate())
	s.app.Add("GET", "/api/templates/:name", s.getTemplate())
	s.app.Add("DELETE", "/api/templates/:name", s.deleteTemplate())

	// エクスポート
	s.app.Add("GET", "/api/export/zip", s.exportZip())
	s.app.Add("POST", "/api/export/sprite-sheet", s.exportSpriteSheet())
	s.app.Add("GET", "/api/export/gif", s.exportGIF())

	// WebSocket による進捗通知
	s.app.Use("/ws", s.wsUpgrade())
	s.app.Get("/ws/:id", s.notifications())
}

// wsObserver はバッチの進捗をハブへ流し、成功スナップショットで
// コレクションを置き換える Observer 実装です。
type wsObserver struct {
	hub *Hub
	col *collection.Manager
}

func (o *wsObserver) OnProgress(p domain.BatchProgress) {
	if p.Total == 0 {
		o.hub.Broadcast(WSEvent{Type: EventProgressClear})
		return
	}
	o.hub.Broadcast(WSEvent{Type: EventProgress, Current: p.Current, Total: p.Total})
}

func (o *wsObserver) OnResult(snapshot []domain.GeneratedImage) {
	o.col.ReplaceAll(snapshot)
	o.hub.Broadcast(WSEvent{Type: EventResult, Completed: len(snapshot)})
}
