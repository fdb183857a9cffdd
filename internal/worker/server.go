package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/chatrelay/internal/cache"
	"github.com/nao1215/chatrelay/internal/channel"
	"github.com/nao1215/chatrelay/internal/fetch"
	"github.com/nao1215/chatrelay/internal/presenter"
	"github.com/nao1215/chatrelay/internal/router"
	"github.com/nao1215/chatrelay/internal/store"
	"github.com/nao1215/chatrelay/pkg/httpclient"
	"github.com/nao1215/chatrelay/pkg/message"
	"github.com/nao1215/chatrelay/pkg/middleware"
)

// Config はワーカーサーバーの設定。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// Version は現行ワーカーのバージョン文字列。キャッシュ世代の識別に使う。
	Version string
	// DBPath はSQLiteデータベースのファイルパス。
	DBPath string
	// JWTSecret はJWT検証用の秘密鍵。
	JWTSecret string
	// UpstreamURL は上流アプリケーション（静的アセットの供給元）のベースURL。
	UpstreamURL string
	// SurfaceURL は通知サーフェスのベースURL。
	SurfaceURL string
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string
	// SkipWaiting はinstall後に即時activateするか（コントローラによる指示）。
	SkipWaiting bool
	// Capabilities はプラットフォームの通知機能フラグ。
	Capabilities presenter.Capabilities
}

// Server はバックグラウンドワーカーのHTTPサーバー。
//
// プッシュ受信・リアルタイムフィードの消費・通知操作のコールバック・
// ページチャネル・アセット配信を1つのginルーターに束ねる。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバー設定。
	cfg Config
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// store は永続集約ストア。
	store *store.AggregationStore
	// hub はページへのメッセージチャネル。
	hub *channel.Hub
	// presenter は通知の提示を担当する。
	presenter *presenter.Presenter
	// interactions は通知操作のルーター。
	interactions *router.Router
	// lifecycle はバージョン世代のライフサイクル管理。
	lifecycle *Lifecycle
	// upstream は上流アプリケーションへのHTTPクライアント。
	upstream *httpclient.Client
	// refresh はバックグラウンドリフレッシュ登録。
	refresh RefreshRegistrar
}

// NewServer は新しいワーカーサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーション適用を行う。
func NewServer(cfg Config) (*Server, error) {
	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	aggStore := store.New(db)
	caches := cache.New(db)
	hub := channel.NewHub()
	surface := presenter.NewHTTPSurface(cfg.SurfaceURL, cfg.Version)
	pres := presenter.New(surface, cfg.Capabilities)
	interactions := router.New(aggStore, hub, pres, surface)

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(gin.Logger())
	if cfg.FrontendURL != "" {
		engine.Use(middleware.CORS([]string{cfg.FrontendURL}))
	}

	s := &Server{
		router:       engine,
		cfg:          cfg,
		db:           db,
		store:        aggStore,
		hub:          hub,
		presenter:    pres,
		interactions: interactions,
		lifecycle:    NewLifecycle(cfg.Version, caches, hub),
		upstream:     httpclient.New(cfg.UpstreamURL).WithVersion(cfg.Version),
		refresh:      NewSurfaceRefresh(cfg.SurfaceURL, cfg.Version),
	}
	hub.SetOnMessage(s.onPageMessage)
	s.setupRoutes(fetch.New(cfg.UpstreamURL, caches, cfg.Version))

	return s, nil
}

// Run はライフサイクルを進めてからHTTPサーバーを起動する。
// ctxはバックグラウンドのリフレッシュループの寿命を制御する。
func (s *Server) Run(ctx context.Context) error {
	s.lifecycle.Install(ctx, s.fetchFromUpstream)
	if s.cfg.SkipWaiting {
		s.lifecycle.SkipWaiting(ctx)
	}

	go runRefreshLoop(ctx, s.refresh)

	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(mediator *fetch.Mediator) {
	api := s.router.Group("/api/v1")
	if s.cfg.JWTSecret != "" {
		api.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	}
	{
		// プッシュ配送の受信（ボディは構造化JSONでもプレーンテキストでもよい）
		api.POST("/push", s.handlePush())
		// リアルタイムフィードからの新着メッセージイベントの消費
		api.POST("/messages", s.handleMessage())
		// 通知上のユーザー操作のコールバック
		api.POST("/notifications/click", s.handleClick())
		// 復帰したページが未読状態を再取得するためのスナップショット
		api.GET("/state", s.handleState())
		// ライフサイクル状態の確認（運用・デバッグ用）
		api.GET("/lifecycle", s.handleLifecycle())
	}

	// ページチャネル（WebSocket）。ハンドシェイクはクエリパラメータのトークンで認証する。
	s.router.GET("/ws", s.handleChannel())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "worker"})
	})

	// APIに一致しない同一オリジンのリクエストはフェッチ仲介が配信する。
	s.router.NoRoute(mediator.Handler())
}

// fetchFromUpstream は上流アプリケーションからアセットを取得するcache.Fetcher。
// install時の事前キャッシュで使用する。
func (s *Server) fetchFromUpstream(ctx context.Context, path string) (*cache.Entry, error) {
	resp, err := s.upstream.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("上流からの取得に失敗: path=%s, status=%d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	return &cache.Entry{
		URL:         path,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// onPageMessage はページから受信したメッセージを処理する。
// 閉じた集合のうちページ→ワーカー方向で意味を持つものだけを扱い、残りは無視する。
func (s *Server) onPageMessage(pageID string, env *message.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch env.Type {
	case message.TypeSkipWaiting:
		log.Printf("[Worker] ページからskip-waiting要求を受信: page_id=%s", pageID)
		s.lifecycle.SkipWaiting(ctx)

	case message.TypeMarkRead:
		// ページが会話を読んだ。ストアからエントリを消し、通知を再計算する。
		data, err := message.DecodePayload[message.MarkReadData](env)
		if err != nil {
			log.Printf("[Worker] MarkReadペイロードの解析に失敗: page_id=%s, error=%v", pageID, err)
			return
		}
		s.store.MarkRead(ctx, data.ConversationID)
		s.interactions.Repaint(ctx)

	case message.TypeMarkAllRead:
		s.store.MarkAllRead(ctx)
		s.interactions.Repaint(ctx)
	}
}

// messageRequest はリアルタイムフィードから消費する新着メッセージイベントのJSON構造。
type messageRequest struct {
	// ConversationID はメッセージが属する会話の識別子。
	ConversationID string `json:"conversation_id" binding:"required"`
	// ContactName は連絡先の表示名。
	ContactName string `json:"contact_name"`
	// ContactImage は連絡先アバターのURL。
	ContactImage string `json:"contact_image"`
	// Preview はメッセージ本文の要約。
	Preview string `json:"preview"`
	// At はメッセージの受信日時（省略時は現在時刻）。
	At time.Time `json:"at"`
}

// handleMessage はリアルタイムフィードからの新着メッセージイベントを処理するハンドラを返す。
// ページが非表示の間に受信したメッセージを未読状態に反映し、通知を再計算する。
func (s *Server) handleMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		s.store.RecordMessage(c.Request.Context(), store.Message{
			ConversationID: req.ConversationID,
			ContactName:    req.ContactName,
			ContactImage:   req.ContactImage,
			Preview:        req.Preview,
			At:             req.At,
		})
		s.interactions.Repaint(c.Request.Context())

		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

// handlePush はプッシュ配送を処理するハンドラを返す。
//
// ボディが構造化JSONとして解析できなければプレーンテキストとして既定値で補う。
// どのような入力でもイベントを取りこぼさず、エラーをユーザーに見せない。
func (s *Server) handlePush() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの読み取りに失敗しました"})
			return
		}

		payload := presenter.ParsePayload(raw)
		if payload.ConversationID != "" {
			// 会話に紐づくプッシュは未読状態に反映してから合体通知を再計算する。
			s.store.RecordMessage(c.Request.Context(), store.Message{
				ConversationID: payload.ConversationID,
				ContactName:    payload.Title,
				ContactImage:   payload.Icon,
				Preview:        payload.Body,
			})
			s.interactions.Repaint(c.Request.Context())
		} else {
			// 会話IDの無いプッシュは集約を経由せずそのまま提示する。
			s.presenter.PresentDirect(c.Request.Context(), payload)
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

// clickRequest は通知操作コールバックのJSON構造。
type clickRequest struct {
	// Action は操作の種類（空の場合は既定動作のopen）。
	Action string `json:"action"`
	// ConversationID は操作対象の会話ID（openでは省略可能）。
	ConversationID string `json:"conversation_id"`
}

// handleClick は通知上のユーザー操作を処理するハンドラを返す。
func (s *Server) handleClick() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req clickRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		s.interactions.HandleClick(c.Request.Context(), router.Action(req.Action), req.ConversationID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// stateEntry は未読状態スナップショットの1エントリのJSONレスポンス構造。
type stateEntry struct {
	// ConversationID は会話の識別子。
	ConversationID string `json:"conversation_id"`
	// ContactName は連絡先の表示名。
	ContactName string `json:"contact_name"`
	// Preview は最新未読メッセージの要約。
	Preview string `json:"preview"`
	// UnreadCount は未読メッセージ数。
	UnreadCount int `json:"unread_count"`
	// LastUpdate は最終更新日時（RFC3339形式）。
	LastUpdate string `json:"last_update"`
}

// handleState は未読状態のスナップショットを返すハンドラを返す。
// リロード後のページが自身の表示を永続状態から再構築するために使う。
func (s *Server) handleState() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries := s.store.Snapshot(c.Request.Context())

		resp := make([]stateEntry, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, stateEntry{
				ConversationID: e.ConversationID,
				ContactName:    e.ContactName,
				Preview:        e.LastMessagePreview,
				UnreadCount:    e.UnreadCount,
				LastUpdate:     e.LastUpdate.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleLifecycle はライフサイクル状態を返すハンドラを返す。
func (s *Server) handleLifecycle() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":   string(s.lifecycle.State()),
			"version": s.lifecycle.Version(),
		})
	}
}

// handleChannel はページチャネルのWebSocket接続を処理するハンドラを返す。
// ブラウザのWebSocket APIはAuthorizationヘッダーを設定できないため、
// トークンはクエリパラメータで受け取る。
func (s *Server) handleChannel() gin.HandlerFunc {
	hubHandler := s.hub.Handler()
	return func(c *gin.Context) {
		if s.cfg.JWTSecret != "" {
			token := c.Query("token")
			if _, err := middleware.ValidateToken(s.cfg.JWTSecret, token); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
				return
			}
		}
		hubHandler(c)
	}
}
