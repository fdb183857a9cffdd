package channel

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nao1215/chatrelay/pkg/message"
)

// writeTimeout はページへの1メッセージ送信にかける時間の上限。
const writeTimeout = 5 * time.Second

// page は接続中の1つのフォアグラウンドページ。
type page struct {
	// id はページインスタンスの一意識別子。
	id string
	// conn はページとのWebSocket接続。
	conn *websocket.Conn
	// connectedAt は接続確立日時。
	connectedAt time.Time
	// lastActive はページから最後にメッセージを受信した日時。
	lastActive time.Time
	// controlled は現行バージョンのワーカーの制御下にあるか。
	controlled bool
	// writeMu は並行書き込みから接続を保護するミューテックス。
	writeMu sync.Mutex
}

// send は1ページへメッセージを書き込む。
func (p *page) send(env *message.Envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(env)
}

// PageInfo は接続中ページの公開情報。
type PageInfo struct {
	// ID はページインスタンスの一意識別子。
	ID string
	// ConnectedAt は接続確立日時。
	ConnectedAt time.Time
	// LastActive は最終アクティビティ日時。
	LastActive time.Time
	// Controlled は現行ワーカーの制御下にあるか。
	Controlled bool
}

// OnMessage はページから受信したメッセージを処理するコールバック。
type OnMessage func(pageID string, env *message.Envelope)

// Hub はフォアグラウンドページとの双方向メッセージチャネルを束ねる。
//
// 配送はすべてfire-and-forgetのベストエフォートで、受信していないページは
// 単にメッセージを取りこぼす（永続ストア経由で次の読み出し時に収束する）。
type Hub struct {
	// mu はページ一覧への並行アクセスを保護するミューテックス。
	mu sync.RWMutex
	// pages は接続中のページ。キーはページID。
	pages map[string]*page
	// onMessage はページからの受信メッセージのコールバック。
	onMessage OnMessage
	// upgrader はWebSocketへのアップグレード設定。
	upgrader websocket.Upgrader
}

// NewHub は新しいハブを生成する。
func NewHub() *Hub {
	return &Hub{
		pages: make(map[string]*page),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// オリジン検査はワーカーHTTP層のCORS/認証に委ねる。
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// SetOnMessage はページからの受信メッセージのコールバックを設定する。
// ハンドラ登録より前に一度だけ呼び出すこと。
func (h *Hub) SetOnMessage(fn OnMessage) {
	h.onMessage = fn
}

// Handler はページ接続を受け付けるGinハンドラを返す。
// 接続ごとにページIDを採番し、切断まで受信ループを回す。
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[Channel] WebSocketアップグレードに失敗: %v", err)
			return
		}

		now := time.Now().UTC()
		p := &page{
			id:          uuid.New().String(),
			conn:        conn,
			connectedAt: now,
			lastActive:  now,
		}

		h.mu.Lock()
		h.pages[p.id] = p
		h.mu.Unlock()
		log.Printf("[Channel] ページが接続しました: page_id=%s", p.id)

		h.readLoop(p)
	}
}

// readLoop はページからのメッセージを受信し、コールバックに引き渡す。
// 未知の種類のメッセージはエラーにせず無視する（前方互換性のため）。
func (h *Hub) readLoop(p *page) {
	defer func() {
		h.mu.Lock()
		delete(h.pages, p.id)
		h.mu.Unlock()
		_ = p.conn.Close()
		log.Printf("[Channel] ページが切断しました: page_id=%s", p.id)
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := message.Decode(data)
		if err != nil {
			log.Printf("[Channel] 不正なメッセージを無視します: page_id=%s, error=%v", p.id, err)
			continue
		}
		if !message.Known(env.Type) {
			continue
		}

		h.mu.Lock()
		p.lastActive = time.Now().UTC()
		h.mu.Unlock()

		if h.onMessage != nil {
			h.onMessage(p.id, env)
		}
	}
}

// Broadcast は接続中の全ページ（未制御のページを含む）にメッセージを配送する。
// 個々の配送失敗はログに残すのみで、全体を失敗させない。
func (h *Hub) Broadcast(env *message.Envelope) {
	h.mu.RLock()
	targets := make([]*page, 0, len(h.pages))
	for _, p := range h.pages {
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.send(env); err != nil {
			log.Printf("[Channel] ページへの配送に失敗: page_id=%s, type=%s, error=%v", p.id, env.Type, err)
		}
	}
}

// Send は指定ページにメッセージを配送する。
// ページが既に存在しない場合はfalseを返す（呼び出し側がフォールバックする）。
func (h *Hub) Send(pageID string, env *message.Envelope) bool {
	h.mu.RLock()
	p, ok := h.pages[pageID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if err := p.send(env); err != nil {
		log.Printf("[Channel] ページへの配送に失敗: page_id=%s, type=%s, error=%v", pageID, env.Type, err)
		return false
	}
	return true
}

// Pages は接続中ページの一覧を最終アクティビティの新しい順で返す。
// 先頭が「最も妥当なフォーカス候補」となる。
func (h *Hub) Pages() []PageInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]PageInfo, 0, len(h.pages))
	for _, p := range h.pages {
		infos = append(infos, PageInfo{
			ID:          p.id,
			ConnectedAt: p.connectedAt,
			LastActive:  p.lastActive,
			Controlled:  p.controlled,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].LastActive.Equal(infos[j].LastActive) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].LastActive.After(infos[j].LastActive)
	})
	return infos
}

// Claim は接続中の全ページを現行ワーカーの制御下に置く。
// リロードを要求せずに新しいコードの管理下へ移すためにactivate時に呼ばれる。
func (h *Hub) Claim() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.pages {
		p.controlled = true
	}
}
