package message

import (
	"encoding/json"
	"time"
)

// Type はバックグラウンドワーカーとフォアグラウンドページの間で
// 交換されるメッセージの種類を表す。閉じた集合であり、未知の種類は
// エラーにせず無視する（前方互換性のため）。
type Type string

const (
	// TypeSkipWaiting はwaiting状態のワーカーに即時activateを要求することを表す。
	// フォアグラウンドページまたはワーカー自身のコントローラから送信される。
	TypeSkipWaiting Type = "SkipWaiting"
	// TypeUpdateAvailable は新しいバージョンのワーカーが制御権を得たことを表す。
	// activate完了後に全ページ（未制御のページを含む）へブロードキャストされる。
	TypeUpdateAvailable Type = "UpdateAvailable"

	// TypeOpenConversation は指定された会話を開くようページに指示することを表す。
	TypeOpenConversation Type = "OpenConversation"
	// TypeMarkRead は単一の会話が既読になったことを表す。
	TypeMarkRead Type = "MarkRead"
	// TypeMarkAllRead は複数の会話が一括既読になったことを表す。
	TypeMarkAllRead Type = "MarkAllRead"
)

// Envelope は実行コンテキスト間を流れるJSONメッセージの外装。
// Typeで判別し、PayloadはType固有のデータ構造を持つ。
type Envelope struct {
	// Type はメッセージの種類。
	Type Type `json:"type"`
	// Payload はType固有のデータ（JSON形式）。
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UpdateAvailableData はUpdateAvailableメッセージのデータ。
type UpdateAvailableData struct {
	// Version は新しく制御権を得たワーカーのバージョン文字列。
	Version string `json:"version"`
}

// OpenConversationData はOpenConversationメッセージのデータ。
type OpenConversationData struct {
	// ConversationID は開く対象の会話の識別子。
	ConversationID string `json:"conversation_id"`
}

// MarkReadData はMarkReadメッセージのデータ。
type MarkReadData struct {
	// ConversationID は既読になった会話の識別子。
	ConversationID string `json:"conversation_id"`
	// At は既読操作が行われた日時。
	At time.Time `json:"at"`
}

// MarkAllReadData はMarkAllReadメッセージのデータ。
type MarkAllReadData struct {
	// ConversationIDs は一括既読の対象となった会話の識別子リスト。
	ConversationIDs []string `json:"conversation_ids"`
}
