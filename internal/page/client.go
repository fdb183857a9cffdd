package page

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/chatrelay/pkg/message"
)

// Handlers はワーカーからルーティングされたメッセージへの反応を定義する。
// 設定されていないハンドラのメッセージは単に無視される。
type Handlers struct {
	// OnOpenConversation は「この会話を開く」指示を受けたときに呼ばれる。
	OnOpenConversation func(conversationID string)
	// OnMarkRead は単一会話の既読通知を受けたときに呼ばれる。
	OnMarkRead func(conversationID string)
	// OnMarkAllRead は一括既読通知を受けたときに呼ばれる。
	OnMarkAllRead func(conversationIDs []string)
	// OnUpdateAvailable は新バージョンのワーカーが利用可能になったときに呼ばれる。
	OnUpdateAvailable func(version string)
}

// Client はフォアグラウンドページ側のメッセージチャネルクライアント。
type Client struct {
	// conn はワーカーとのWebSocket接続。
	conn *websocket.Conn
	// handlers はルーティングされたメッセージのディスパッチ先。
	handlers Handlers
	// done は受信ループの終了を通知するチャネル。
	done chan struct{}
	// writeMu は並行書き込みから接続を保護するミューテックス。
	writeMu sync.Mutex
}

// Connect はワーカーのメッセージチャネルに接続し、受信ループを開始する。
// wsURLは "ws://host:port/ws" 形式。tokenが空でなければクエリパラメータで渡す。
func Connect(ctx context.Context, wsURL, token string, handlers Handlers) (*Client, error) {
	if token != "" {
		wsURL += "?token=" + token
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ワーカーへの接続に失敗: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: handlers,
		done:     make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Close は接続を閉じ、受信ループを停止する。
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return c.conn.Close()
}

// Done は受信ループの終了を待つためのチャネルを返す。
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SendSkipWaiting はwaiting状態のワーカーに即時activateを要求する。
func (c *Client) SendSkipWaiting() error {
	env, err := message.New(message.TypeSkipWaiting, nil)
	if err != nil {
		return err
	}
	return c.send(env)
}

// send は1メッセージをワーカーに書き込む。
func (c *Client) send(env *message.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("ワーカーへの送信に失敗: %w", err)
	}
	return nil
}

// readLoop はワーカーからのメッセージを受信し、種類ごとにディスパッチする。
// 未知の種類は将来のメッセージ型との前方互換性のためエラーにせず無視する。
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := message.Decode(data)
		if err != nil {
			log.Printf("[Page] 不正なメッセージを無視します: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch は1メッセージを種類に応じてハンドラに引き渡す。
func (c *Client) dispatch(env *message.Envelope) {
	switch env.Type {
	case message.TypeOpenConversation:
		if c.handlers.OnOpenConversation == nil {
			return
		}
		data, err := message.DecodePayload[message.OpenConversationData](env)
		if err != nil {
			log.Printf("[Page] OpenConversationペイロードの解析に失敗: %v", err)
			return
		}
		c.handlers.OnOpenConversation(data.ConversationID)

	case message.TypeMarkRead:
		if c.handlers.OnMarkRead == nil {
			return
		}
		data, err := message.DecodePayload[message.MarkReadData](env)
		if err != nil {
			log.Printf("[Page] MarkReadペイロードの解析に失敗: %v", err)
			return
		}
		c.handlers.OnMarkRead(data.ConversationID)

	case message.TypeMarkAllRead:
		if c.handlers.OnMarkAllRead == nil {
			return
		}
		data, err := message.DecodePayload[message.MarkAllReadData](env)
		if err != nil {
			log.Printf("[Page] MarkAllReadペイロードの解析に失敗: %v", err)
			return
		}
		c.handlers.OnMarkAllRead(data.ConversationIDs)

	case message.TypeUpdateAvailable:
		if c.handlers.OnUpdateAvailable == nil {
			return
		}
		data, err := message.DecodePayload[message.UpdateAvailableData](env)
		if err != nil {
			log.Printf("[Page] UpdateAvailableペイロードの解析に失敗: %v", err)
			return
		}
		c.handlers.OnUpdateAvailable(data.Version)
	}
}
