package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// stateKey は集約レコードの固定キー。永続化されるレコードは常に1件のみ。
const stateKey = "aggregation"

// ConversationState は未読メッセージを持つ1つの会話の通知状態。
// 会話を既読にするとエントリごと削除される（未読0件のエントリは存在しない）。
type ConversationState struct {
	// ConversationID は会話の不変な識別子。
	ConversationID string `json:"conversation_id"`
	// ContactName は連絡先の表示名。最後に受信した値が優先される。
	ContactName string `json:"contact_name"`
	// LastMessagePreview は最新未読メッセージの要約テキスト。
	LastMessagePreview string `json:"last_message_preview"`
	// ContactImage は連絡先アバターのURL。空文字列の場合は既定アイコンにフォールバックする。
	ContactImage string `json:"contact_image,omitempty"`
	// UnreadCount は未読メッセージ数。未読である限り単調増加する。
	UnreadCount int `json:"unread_count"`
	// LastUpdate は最後に寄与したイベントの日時。並び順にのみ使用し、期限切れ判定には使わない。
	LastUpdate time.Time `json:"last_update"`
}

// Message は外部のリアルタイムフィードから受信する「新着メッセージ」イベントの形。
// 本サブシステムはこの形を消費するだけで、生成はしない。
type Message struct {
	// ConversationID はメッセージが属する会話の識別子。
	ConversationID string
	// ContactName は連絡先の表示名。
	ContactName string
	// ContactImage は連絡先アバターのURL（省略可能）。
	ContactImage string
	// Preview はメッセージ本文の要約。
	Preview string
	// At はメッセージの受信日時。ゼロ値の場合は現在時刻が使われる。
	At time.Time
}

// AggregationStore は会話IDから未読状態へのマッピングを単一の永続レコードとして保持する。
//
// バックグラウンドワーカーとフォアグラウンドページのどちらのコンテキストも
// read-modify-writeで更新するため、書き込みはレコード全体のlast-write-winsとする。
// フィールド単位のマージは保証しない（各書き込み元はエントリ全体の追加・削除しか
// 行わないため、収束のずれは次のメッセージで自己修復する）。
type AggregationStore struct {
	db *sqlx.DB
}

// New は新しい集約ストアを生成する。
func New(db *sqlx.DB) *AggregationStore {
	return &AggregationStore{db: db}
}

// load は永続レコードを読み込み、会話IDから状態へのマップを返す。
// 読み込みに失敗した場合は「過去の状態なし」として空のマップを返す。
// 永続化が使えなくても集約は空の基準から続行する。
func (s *AggregationStore) load(ctx context.Context) map[string]ConversationState {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT data FROM aggregation_state WHERE name = ?", stateKey)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[Store] 集約レコードの読み込みに失敗（空の状態で続行）: %v", err)
		}
		return map[string]ConversationState{}
	}

	states := map[string]ConversationState{}
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		log.Printf("[Store] 集約レコードの解析に失敗（空の状態で続行）: %v", err)
		return map[string]ConversationState{}
	}
	return states
}

// save は会話状態マップ全体を単一レコードとして書き込む。
func (s *AggregationStore) save(ctx context.Context, states map[string]ConversationState) {
	data, err := json.Marshal(states)
	if err != nil {
		log.Printf("[Store] 集約レコードのシリアライズに失敗: %v", err)
		return
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregation_state (name, data, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		stateKey, string(data),
	)
	if err != nil {
		// 書き込み失敗は致命的ではない。次のイベントで再構築される。
		log.Printf("[Store] 集約レコードの書き込みに失敗: %v", err)
	}
}

// RecordMessage は新着メッセージを会話の未読状態に反映する。
// 既存エントリがあれば未読数を加算し、表示名・アバター・プレビューは最新値で上書きする。
func (s *AggregationStore) RecordMessage(ctx context.Context, msg Message) {
	if msg.ConversationID == "" {
		return
	}
	at := msg.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	states := s.load(ctx)
	state := states[msg.ConversationID]
	state.ConversationID = msg.ConversationID
	state.ContactName = msg.ContactName
	state.LastMessagePreview = msg.Preview
	if msg.ContactImage != "" {
		state.ContactImage = msg.ContactImage
	}
	state.UnreadCount++
	state.LastUpdate = at
	states[msg.ConversationID] = state

	s.save(ctx, states)
}

// MarkRead は指定された会話のエントリをストアから完全に削除する。
// 未読数0のエントリを残さないことが不変条件。
func (s *AggregationStore) MarkRead(ctx context.Context, conversationID string) {
	states := s.load(ctx)
	if _, ok := states[conversationID]; !ok {
		return
	}
	delete(states, conversationID)
	s.save(ctx, states)
}

// MarkAllRead は全会話のエントリを一括削除し、対象だった会話IDのリストを返す。
func (s *AggregationStore) MarkAllRead(ctx context.Context) []string {
	states := s.load(ctx)
	if len(states) == 0 {
		return nil
	}

	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.save(ctx, map[string]ConversationState{})
	return ids
}

// Snapshot は全エントリをLastUpdateの降順（新しい順）で返す。
// 挿入順は意味を持たず、読み出しのたびに並べ直す。
func (s *AggregationStore) Snapshot(ctx context.Context) []ConversationState {
	states := s.load(ctx)

	entries := make([]ConversationState, 0, len(states))
	for _, state := range states {
		entries = append(entries, state)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastUpdate.Equal(entries[j].LastUpdate) {
			return entries[i].ConversationID < entries[j].ConversationID
		}
		return entries[i].LastUpdate.After(entries[j].LastUpdate)
	})
	return entries
}
