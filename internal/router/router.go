package router

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/nao1215/chatrelay/internal/aggregate"
	"github.com/nao1215/chatrelay/internal/channel"
	"github.com/nao1215/chatrelay/internal/presenter"
	"github.com/nao1215/chatrelay/internal/store"
	"github.com/nao1215/chatrelay/pkg/message"
)

// Action は通知上のユーザー操作の種類。
type Action string

const (
	// ActionOpen は会話を開く操作（通知本体のクリックを含む既定動作）。
	ActionOpen Action = "open"
	// ActionMarkRead は単一の会話を既読にする操作。
	ActionMarkRead Action = "mark-read"
	// ActionMarkAllRead は全会話を一括既読にする操作。
	ActionMarkAllRead Action = "mark-all-read"
)

// Router は通知上のユーザー操作を適切なページまたはストア更新に振り分ける。
type Router struct {
	// store は永続集約ストア。
	store *store.AggregationStore
	// hub はページへのメッセージチャネル。
	hub *channel.Hub
	// presenter は通知の再提示に使う。
	presenter *presenter.Presenter
	// surface は新規ページのオープンに使う。
	surface presenter.Surface
}

// New は新しいRouterを生成する。
func New(s *store.AggregationStore, hub *channel.Hub, p *presenter.Presenter, surface presenter.Surface) *Router {
	return &Router{store: s, hub: hub, presenter: p, surface: surface}
}

// DeepLink は会話を直接開くためのURLを作る。
// ルーティングされたフォーカスとコールドスタート起動の両方で同じ規約を使う。
func DeepLink(conversationID string) string {
	if conversationID == "" {
		return "/"
	}
	return "/?conversation=" + url.QueryEscape(conversationID)
}

// HandleClick は通知上の操作を処理する。不明な操作は既定動作（open）として扱う。
func (r *Router) HandleClick(ctx context.Context, action Action, conversationID string) {
	switch action {
	case ActionMarkRead:
		r.markRead(ctx, conversationID)
	case ActionMarkAllRead:
		r.markAllRead(ctx)
	default:
		r.open(ctx, conversationID)
	}
}

// Repaint は集約ストアから通知を再計算して提示し直す。
// 表示中の通知を差分更新することはなく、常に全体を置換する。
func (r *Router) Repaint(ctx context.Context) {
	r.presenter.Present(ctx, aggregate.Compose(r.store.Snapshot(ctx)))
}

// open は会話を開く操作をページに振り分ける。
// クリックに会話IDが付いていなければ、最も新しく更新された会話を対象にする。
// 接続中のページが無い、または配送に失敗した場合は新しいページを開く。
func (r *Router) open(ctx context.Context, conversationID string) {
	if conversationID == "" {
		if entries := r.store.Snapshot(ctx); len(entries) > 0 {
			conversationID = entries[0].ConversationID
		}
	}

	env, err := message.New(message.TypeOpenConversation, message.OpenConversationData{
		ConversationID: conversationID,
	})
	if err != nil {
		log.Printf("[Router] openメッセージの作成に失敗: %v", err)
		return
	}

	// 最終アクティビティの新しい順に配送を試み、最初に成功したページにフォーカスする。
	for _, info := range r.hub.Pages() {
		if r.hub.Send(info.ID, env) {
			log.Printf("[Router] 会話を開くようページに指示しました: page_id=%s, conversation_id=%s", info.ID, conversationID)
			return
		}
	}

	// ページが1つも無ければ、ディープリンクで新しいページを開く。
	if err := r.surface.OpenPage(ctx, DeepLink(conversationID)); err != nil {
		log.Printf("[Router] 新規ページのオープンに失敗: %v", err)
	}
}

// markRead は単一会話の既読操作を処理する。
// ページの存在を要求しない。ブロードキャストはベストエフォートで、
// 動いていないページは単に取りこぼす（永続ストア側は確実に更新される）。
func (r *Router) markRead(ctx context.Context, conversationID string) {
	if conversationID == "" {
		return
	}

	env, err := message.New(message.TypeMarkRead, message.MarkReadData{
		ConversationID: conversationID,
		At:             time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[Router] mark-readメッセージの作成に失敗: %v", err)
	} else {
		r.hub.Broadcast(env)
	}

	r.store.MarkRead(ctx, conversationID)
	r.Repaint(ctx)
}

// markAllRead は全会話の一括既読操作を処理する。
// 対象となった会話IDの全リストをページにブロードキャストし、ストアを空にする。
//
// 一括既読はアカウント単位のアクセス制限を経由しない。通知層は権限スコープ外の
// UX利便機能として扱う（DESIGN.md参照）。
func (r *Router) markAllRead(ctx context.Context) {
	ids := r.store.MarkAllRead(ctx)

	env, err := message.New(message.TypeMarkAllRead, message.MarkAllReadData{
		ConversationIDs: ids,
	})
	if err != nil {
		log.Printf("[Router] mark-all-readメッセージの作成に失敗: %v", err)
	} else {
		r.hub.Broadcast(env)
	}

	r.Repaint(ctx)
}
