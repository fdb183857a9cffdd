// バックグラウンドワーカーのエントリポイント。
// ページが開いていなくてもプッシュを受信し、未読状態を集約して
// 単一の合体通知として提示する。
package main

import (
	"context"
	"log"
	"os"

	"github.com/nao1215/chatrelay/internal/presenter"
	"github.com/nao1215/chatrelay/internal/worker"
)

func main() {
	cfg := worker.Config{
		Port:        getEnvOr("PORT", "8090"),
		Version:     getEnvOr("WORKER_VERSION", "dev"),
		DBPath:      getEnvOr("DB_PATH", "/data/worker.db"),
		JWTSecret:   getEnvOr("JWT_SECRET", "dev-secret-key"),
		UpstreamURL: getEnvOr("UPSTREAM_URL", "http://localhost:3000"),
		SurfaceURL:  getEnvOr("SURFACE_URL", "http://localhost:3001"),
		FrontendURL: getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		SkipWaiting: os.Getenv("WORKER_SKIP_WAITING") == "1",
		Capabilities: presenter.Capabilities{
			Vibration: os.Getenv("CAP_NO_VIBRATION") != "1",
			Image:     os.Getenv("CAP_NO_IMAGE") != "1",
		},
	}

	server, err := worker.NewServer(cfg)
	if err != nil {
		log.Fatalf("ワーカーサーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("ワーカーを起動します: :%s (version=%s)", cfg.Port, cfg.Version)
	if err := server.Run(context.Background()); err != nil {
		log.Fatalf("ワーカーの起動に失敗: %v", err)
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
