package channel

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/chatrelay/pkg/message"
)

// newTestHub はハブをWebSocketエンドポイントとして起動するヘルパー関数。
// 返されるURLは "ws://..." 形式。
func newTestHub(t *testing.T, hub *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws", hub.Handler())
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// dial はテスト用のWebSocket接続を張るヘルパー関数。
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// waitForPages はハブが期待数のページを認識するまで待つヘルパー関数。
// 接続の登録はハンドラ側の受信ループ開始と非同期なため必要になる。
func waitForPages(t *testing.T, hub *Hub, want int) []PageInfo {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pages := hub.Pages(); len(pages) == want {
			return pages
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ページ数が期待値にならなかった: want=%d, got=%d", want, len(hub.Pages()))
	return nil
}

// TestHubRegistersAndUnregisters は接続の登録と切断時の登録解除を検証する。
func TestHubRegistersAndUnregisters(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	wsURL := newTestHub(t, hub)

	conn := dial(t, wsURL)
	waitForPages(t, hub, 1)

	_ = conn.Close()
	waitForPages(t, hub, 0)
}

// TestHubBroadcast はブロードキャストが接続中の全ページに届くことを検証する。
func TestHubBroadcast(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	wsURL := newTestHub(t, hub)

	first := dial(t, wsURL)
	second := dial(t, wsURL)
	waitForPages(t, hub, 2)

	env, err := message.New(message.TypeUpdateAvailable, message.UpdateAvailableData{Version: "v2"})
	if err != nil {
		t.Fatalf("メッセージの生成に失敗: %v", err)
	}
	hub.Broadcast(env)

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got message.Envelope
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("ブロードキャストの受信に失敗: %v", err)
		}
		if got.Type != message.TypeUpdateAvailable {
			t.Errorf("メッセージ種類が不正: got=%s", got.Type)
		}
	}
}

// TestHubSendToPage は特定ページへの配送と、存在しないページへの
// 配送失敗（フォールバック判定）を検証する。
func TestHubSendToPage(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	wsURL := newTestHub(t, hub)

	conn := dial(t, wsURL)
	pages := waitForPages(t, hub, 1)

	env, err := message.New(message.TypeOpenConversation, message.OpenConversationData{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("メッセージの生成に失敗: %v", err)
	}

	if !hub.Send(pages[0].ID, env) {
		t.Error("接続中のページへの配送が失敗を返した")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got message.Envelope
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("メッセージの受信に失敗: %v", err)
	}
	if got.Type != message.TypeOpenConversation {
		t.Errorf("メッセージ種類が不正: got=%s", got.Type)
	}

	if hub.Send("no-such-page", env) {
		t.Error("存在しないページへの配送が成功を返した")
	}
}

// TestHubOnMessage はページからの既知メッセージがコールバックに届き、
// 未知の種類のメッセージが無視されることを検証する。
func TestHubOnMessage(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	received := make(chan *message.Envelope, 2)
	hub.SetOnMessage(func(_ string, env *message.Envelope) {
		received <- env
	})
	wsURL := newTestHub(t, hub)

	conn := dial(t, wsURL)
	waitForPages(t, hub, 1)

	// 未知の種類を先に送る。コールバックには届かないはず。
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"FutureThing"}`)); err != nil {
		t.Fatalf("送信に失敗: %v", err)
	}
	if err := conn.WriteJSON(message.Envelope{Type: message.TypeSkipWaiting}); err != nil {
		t.Fatalf("送信に失敗: %v", err)
	}

	select {
	case env := <-received:
		if env.Type != message.TypeSkipWaiting {
			t.Errorf("未知の種類のメッセージがコールバックに届いた: got=%s", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("コールバックが呼ばれなかった")
	}
}

// TestHubClaim はclaimで全ページが制御下に入ることを検証する。
func TestHubClaim(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	wsURL := newTestHub(t, hub)

	dial(t, wsURL)
	pages := waitForPages(t, hub, 1)
	if pages[0].Controlled {
		t.Error("接続直後のページが制御下になっている")
	}

	hub.Claim()
	if pages := hub.Pages(); !pages[0].Controlled {
		t.Error("claim後もページが制御下にない")
	}
}
