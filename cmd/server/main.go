// chara-varia-kit のバックエンドサーバーです。ベース画像1枚と差分指示リストから
// キャラクターの表情・ポーズ差分を一括生成し、ブラウザ UI に配信します。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/TypeTerrors/gonfig"
	charmlog "github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/chara-varia-kit/internal/config"
	"github.com/shouni/chara-varia-kit/internal/web"
	"github.com/shouni/chara-varia-kit/pkg/batch"
	"github.com/shouni/chara-varia-kit/pkg/codec"
	"github.com/shouni/chara-varia-kit/pkg/collection"
	"github.com/shouni/chara-varia-kit/pkg/editor"
	"github.com/shouni/chara-varia-kit/pkg/generator"
	"github.com/shouni/chara-varia-kit/pkg/store"
)

func main() {
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "chara-varia",
	})
	slog.SetDefault(slog.New(logger))

	if err := run(); err != nil {
		slog.Error("サーバーを起動できませんでした", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := gonfig.Load[config.Config](
		gonfig.WithConfigFile("config/config.yaml"),
		gonfig.WithDotenv(".env"), // 無ければ読み飛ばされる
		gonfig.WithStrict(),
	)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	slog.Info("サーバーを起動しました", "port", cfg.Server.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("シャットダウンします")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildServer は設定から全コンポーネントを組み立てます。
func buildServer(ctx context.Context, cfg config.Config) (*web.Server, error) {
	aiClient, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.Gemini.APIKey})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}

	cacheTTL := time.Duration(cfg.Gemini.CacheTTLMinutes) * time.Minute
	if cacheTTL <= 0 {
		cacheTTL = 55 * time.Minute
	}
	imageCache := gocache.New(cacheTTL, 10*time.Minute)

	gen, err := generator.NewGeminiVariationClient(aiClient, cfg.Gemini.Model, imageCache, cacheTTL)
	if err != nil {
		return nil, err
	}

	kv, err := store.NewFileKV(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("データディレクトリを用意できませんでした: %w", err)
	}
	st, err := store.New(kv)
	if err != nil {
		return nil, err
	}

	orc, err := batch.New(gen, st)
	if err != nil {
		return nil, err
	}

	col := collection.NewManager()

	edit, err := editor.New(col, gen)
	if err != nil {
		return nil, err
	}

	fetcher, err := buildFetcher(ctx, imageCache, cacheTTL)
	if err != nil {
		// URL 取り込みはオプション機能なので起動は続行する
		slog.Warn("URL取り込み機能を無効化します", "error", err)
	}

	return web.NewServer(cfg.Server, web.Deps{
		Generator:    gen,
		Orchestrator: orc,
		Collection:   col,
		Editor:       edit,
		Store:        st,
		Fetcher:      fetcher,
	})
}

func buildFetcher(ctx context.Context, cache codec.ImageCacher, ttl time.Duration) (*codec.Fetcher, error) {
	httpClient := httpkit.New(30 * time.Second)

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSリーダーの初期化に失敗しました: %w", err)
	}
	reader := remoteio.NewUniversalInputReader(gcsClient, nil)

	return codec.NewFetcher(httpClient, reader, cache, ttl)
}
