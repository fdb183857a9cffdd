package worker

import (
	"context"
	"log"
	"time"

	"github.com/nao1215/chatrelay/pkg/httpclient"
)

// refreshInterval はバックグラウンドリフレッシュ登録を試みる間隔。
// 粗い周期タイマーであり、これより細かくポーリングするものは本サブシステムに存在しない。
const refreshInterval = 30 * time.Second

// RefreshRegistrar はベストエフォートのバックグラウンドリフレッシュ登録。
// ホスト環境が登録をサポートしない、あるいは拒否することは正常系として扱う。
type RefreshRegistrar interface {
	// Register はバックグラウンドリフレッシュの登録を試みる。
	Register(ctx context.Context) error
}

// SurfaceRefresh は通知サーフェス経由のリフレッシュ登録実装。
type SurfaceRefresh struct {
	client *httpclient.Client
}

// NewSurfaceRefresh は通知サーフェスへのリフレッシュ登録実装を生成する。
func NewSurfaceRefresh(baseURL, version string) *SurfaceRefresh {
	return &SurfaceRefresh{client: httpclient.New(baseURL).WithVersion(version)}
}

// Register はリフレッシュタグの登録を依頼する。
func (r *SurfaceRefresh) Register(ctx context.Context) error {
	body := map[string]string{"tag": "chatrelay-refresh"}
	return r.client.PostJSON(ctx, "/api/v1/refresh/register", body, nil)
}

// runRefreshLoop は周期的にバックグラウンドリフレッシュの再登録を試みる。
// 登録の失敗はエラーとして扱わず、次の周期で再試行する。
func runRefreshLoop(ctx context.Context, registrar RefreshRegistrar) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := registrar.Register(callCtx); err != nil {
				// 未対応・拒否は想定内。ログに残すのみで継続する。
				log.Printf("[Refresh] リフレッシュ登録は受理されませんでした（継続）: %v", err)
			}
			cancel()
		}
	}
}
