package codec

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shouni/chara-varia-kit/pkg/domain"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

const cacheKeyRemoteImage = "remote_image:"

// ImageCacher は取得済みバイト列のキャッシュ操作を抽象化するインターフェースです。
type ImageCacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}

// Fetcher はリモート参照（http/https および gs://）からベース画像を取得します。
type Fetcher struct {
	httpClient httpkit.ClientInterface
	reader     remoteio.InputReader
	cache      ImageCacher
	expiration time.Duration
}

// NewFetcher は依存関係を注入して Fetcher を初期化します。
// cache は nil を許容します（キャッシュなし動作）。
func NewFetcher(httpClient httpkit.ClientInterface, reader remoteio.InputReader, cache ImageCacher, cacheTTL time.Duration) (*Fetcher, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	return &Fetcher{
		httpClient: httpClient,
		reader:     reader,
		cache:      cache,
		expiration: cacheTTL,
	}, nil
}

// Fetch は URL からベース画像を取得し、FromBytes と同じ検証を通して返します。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.BaseImage, error) {
	data, err := f.fetchBytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return FromBytes(path.Base(rawURL), data)
}

func (f *Fetcher) fetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	cacheKey := cacheKeyRemoteImage + rawURL
	if f.cache != nil {
		if val, ok := f.cache.Get(cacheKey); ok {
			if data, ok := val.([]byte); ok {
				return data, nil
			}
		}
	}

	var data []byte
	if strings.HasPrefix(rawURL, "gs://") {
		rc, err := f.reader.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
	} else {
		if safe, err := IsSafeURL(rawURL); err != nil || !safe {
			return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
		}
		fetched, err := f.httpClient.FetchBytes(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		data = fetched
	}

	if f.cache != nil {
		f.cache.Set(cacheKey, data, f.expiration)
	}
	return data, nil
}

// IsSafeURL は、SSRF (Server-Side Request Forgery) 対策として URL を検証します。
// gs:// はストレージ層で権限検証されるためそのまま許可し、http/https は
// プライベートIPやループバックアドレスをターゲットにしていないことを確認します。
func IsSafeURL(rawURL string) (bool, error) {
	if strings.HasPrefix(rawURL, "gs://") {
		return true, nil
	}

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false, fmt.Errorf("URLパース失敗: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, fmt.Errorf("不許可スキーム: %s", parsedURL.Scheme)
	}

	host := parsedURL.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return false, fmt.Errorf("ホスト '%s' の名前解決に失敗しました: %w", host, err)
		}
		ips = resolved
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return false, fmt.Errorf("制限されたネットワークへのアクセスを検知: %s", ip.String())
		}
	}

	return true, nil
}
