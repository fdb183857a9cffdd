package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/chatrelay/internal/cache"
	"github.com/nao1215/chatrelay/pkg/httpclient"
)

// bypassPrefixes はキャッシュを一切経由しないパスの接頭辞。
// アイコンとマニフェストは開発者管理のアセットであり、
// オフラインキャッシュから古い内容を配信してはならない。
var bypassPrefixes = []string{
	"/icons/",
	"/favicon",
	"/manifest.webmanifest",
}

// Mediator は同一オリジンのGETリクエストに対してネットワーク優先の配信方針を適用する。
//
// ネットワーク成功時（2xx）は生のレスポンスを返しつつ複製を非同期でキャッシュに保存し、
// ネットワーク失敗時はキャッシュにフォールバックする。キャッシュにも無ければ失敗させる
// （合成オフラインページは作らない）。切断運用のためではなく、一時的な
// ネットワーク断への耐性のための方針。
type Mediator struct {
	// upstream は上流アプリケーションへのHTTPクライアント。
	upstream *httpclient.Client
	// upstreamURL は上流アプリケーションのベースURL。GET以外の素通しに使用する。
	upstreamURL string
	// cache はアセットキャッシュ。
	cache *cache.Store
	// cacheName は稼働中のキャッシュ世代名。
	cacheName string
}

// New は新しいフェッチ仲介を生成する。
// versionは稼働中のワーカーのバージョン文字列。
func New(upstreamURL string, cacheStore *cache.Store, version string) *Mediator {
	return &Mediator{
		upstream:    httpclient.New(upstreamURL).WithVersion(version),
		upstreamURL: upstreamURL,
		cache:       cacheStore,
		cacheName:   cache.GenerationName(version),
	}
}

// Bypass はパスがキャッシュを経由しないクラスに属するかを判定する。
// バージョンクエリ付きのURL（強制リフレッシュ）もキャッシュを迂回する。
func Bypass(path, rawQuery string) bool {
	for _, prefix := range bypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if rawQuery != "" && hasVersionParam(rawQuery) {
		return true
	}
	return false
}

// hasVersionParam はクエリ文字列にバージョンパラメータ（v=）が含まれるかを返す。
func hasVersionParam(rawQuery string) bool {
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "v" || strings.HasPrefix(pair, "v=") {
			return true
		}
	}
	return false
}

// Handler はフェッチ仲介のGinハンドラを返す。
// APIルートに一致しなかったリクエスト（NoRoute）に適用される。
func (m *Mediator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// キャッシュの読み書きを行うのは安全なメソッドのみ。
		if c.Request.Method != http.MethodGet {
			m.passthrough(c)
			return
		}

		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}

		if Bypass(c.Request.URL.Path, c.Request.URL.RawQuery) {
			m.networkOnly(c, path)
			return
		}
		m.networkFirst(c, path)
	}
}

// networkOnly はキャッシュを一切読み書きせず上流から配信する。
func (m *Mediator) networkOnly(c *gin.Context, path string) {
	resp, err := m.upstream.Get(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "上流アプリケーションとの通信に失敗しました"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}
	c.Data(resp.StatusCode, contentTypeOf(resp), body)
}

// networkFirst はネットワーク優先で配信し、失敗時にキャッシュへフォールバックする。
func (m *Mediator) networkFirst(c *gin.Context, path string) {
	resp, err := m.upstream.Get(c.Request.Context(), path)
	if err != nil {
		m.serveFromCache(c, path)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.serveFromCache(c, path)
		return
	}

	contentType := contentTypeOf(resp)
	c.Data(resp.StatusCode, contentType, body)

	// 2xxのレスポンスだけを保存する。レスポンス返却をブロックしないよう
	// 書き込みはfire-and-forgetで行い、失敗してもログに残すのみ。
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		entry := &cache.Entry{URL: path, ContentType: contentType, Body: body}
		go func() {
			if err := m.cache.Put(context.Background(), m.cacheName, entry); err != nil {
				log.Printf("[Fetch] キャッシュ書き込みに失敗: path=%s, error=%v", path, err)
			}
		}()
	}
}

// serveFromCache はキャッシュからの配信を試みる。
// エントリが無ければ504を返す。合成オフラインページは作らない。
func (m *Mediator) serveFromCache(c *gin.Context, path string) {
	entry, err := m.cache.Get(c.Request.Context(), m.cacheName, path)
	if err != nil || entry == nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "上流アプリケーションに到達できず、キャッシュにもありません"})
		return
	}
	c.Data(http.StatusOK, entry.ContentType, entry.Body)
}

// passthrough はGET以外のリクエストをキャッシュに関与させず上流へ素通しする。
func (m *Mediator) passthrough(c *gin.Context) {
	proxyURL := m.upstreamURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		proxyURL += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, proxyURL, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}
	req.Header.Set("Content-Type", c.GetHeader("Content-Type"))
	req.Header.Set("Authorization", c.GetHeader("Authorization"))

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "上流アプリケーションとの通信に失敗しました"})
		log.Printf("[Fetch] 素通しプロキシエラー: url=%s, error=%v", proxyURL, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}
	c.Data(resp.StatusCode, contentTypeOf(resp), body)
}

// contentTypeOf はレスポンスのContent-Typeを返す。未設定の場合は既定値を返す。
func contentTypeOf(resp *http.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
