// フォアグラウンドページクライアントのエントリポイント。
// ワーカーのメッセージチャネルに接続し、ルーティングされた指示を表示する
// 開発・運用確認用のツール。
package main

import (
	"context"
	"log"
	"os"

	"github.com/nao1215/chatrelay/internal/page"
	"github.com/nao1215/chatrelay/pkg/middleware"
)

func main() {
	wsURL := getEnvOr("WORKER_WS_URL", "ws://localhost:8090/ws")

	// ワーカーと同じ秘密鍵で開発用トークンを発行する。
	token, err := middleware.GenerateJWT(getEnvOr("JWT_SECRET", "dev-secret-key"), "dev-staff")
	if err != nil {
		log.Fatalf("開発用トークンの生成に失敗: %v", err)
	}

	client, err := page.Connect(context.Background(), wsURL, token, page.Handlers{
		OnOpenConversation: func(conversationID string) {
			log.Printf("会話を開く指示を受信: conversation_id=%s", conversationID)
		},
		OnMarkRead: func(conversationID string) {
			log.Printf("既読の伝播を受信: conversation_id=%s", conversationID)
		},
		OnMarkAllRead: func(conversationIDs []string) {
			log.Printf("一括既読の伝播を受信: %d件", len(conversationIDs))
		},
		OnUpdateAvailable: func(version string) {
			log.Printf("新しいワーカーが利用可能: version=%s", version)
		},
	})
	if err != nil {
		log.Fatalf("ワーカーへの接続に失敗: %v", err)
	}
	defer client.Close()

	log.Printf("ワーカーに接続しました: %s", wsURL)

	if os.Getenv("SEND_SKIP_WAITING") == "1" {
		if err := client.SendSkipWaiting(); err != nil {
			log.Printf("skip-waiting要求の送信に失敗: %v", err)
		}
	}

	// 切断されるまでルーティングされたメッセージを表示し続ける。
	<-client.Done()
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
