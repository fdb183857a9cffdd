package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nao1215/chatrelay/internal/store"
)

const (
	// Tag は提示される通知の固定識別子。
	// 通知サーフェス側がこのタグで置換を行うため、通知は常に1件に合体される。
	Tag = "chatrelay-unread"

	// DefaultIcon はアバターが無い場合に使用するアプリアイコンのパス。
	DefaultIcon = "/icons/icon-192.png"
	// DefaultBadge は通知バッジのパス。一部のプラットフォームでは
	// バッジが未設定だと通知自体が表示されないため、常に具体値を設定する。
	DefaultBadge = "/icons/badge-72.png"

	// previewLimit は本文1行あたりのプレビュー文字数上限（ルーン単位）。
	previewLimit = 40
	// maxBodyLines は複数会話の本文に列挙する会話の最大数。
	maxBodyLines = 3
)

// Notification は集約ストアから導出された、提示可能な単一の通知。
// 独立して永続化されることはなく、ストアからいつでも再構築できる。
type Notification struct {
	// Tag は固定の通知識別子。
	Tag string
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
	// Icon は通知のアイコン（最新の会話のアバター、無ければ既定アイコン）。
	Icon string
}

// Compose は集約ストアのスナップショットから単一の通知を決定的に合成する。
// エントリが空の場合はnilを返す（呼び出し側は固定タグの通知を閉じる）。
//
// 同じスナップショットからは常にバイト単位で同一のタイトル・本文が得られる。
// 再計算による置換で表示がちらつかないために必要な性質。
func Compose(entries []store.ConversationState) *Notification {
	sorted := make([]store.ConversationState, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LastUpdate.Equal(sorted[j].LastUpdate) {
			return sorted[i].ConversationID < sorted[j].ConversationID
		}
		return sorted[i].LastUpdate.After(sorted[j].LastUpdate)
	})

	switch len(sorted) {
	case 0:
		return nil
	case 1:
		return composeSingle(sorted[0])
	default:
		return composeMulti(sorted)
	}
}

// composeSingle は未読会話が1件の場合の通知を合成する。
func composeSingle(entry store.ConversationState) *Notification {
	body := entry.LastMessagePreview
	if entry.UnreadCount > 1 {
		body = fmt.Sprintf("%s (%d messages)", body, entry.UnreadCount)
	}

	return &Notification{
		Tag:   Tag,
		Title: entry.ContactName,
		Body:  body,
		Icon:  iconOf(entry),
	}
}

// composeMulti は未読会話が複数件の場合の合体通知を合成する。
// 本文はLastUpdateの新しい順に最大3会話を列挙し、溢れた分は件数行で表す。
func composeMulti(entries []store.ConversationState) *Notification {
	total := 0
	for _, e := range entries {
		total += e.UnreadCount
	}

	var lines []string
	for i, e := range entries {
		if i >= maxBodyLines {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", e.ContactName, truncate(e.LastMessagePreview)))
	}

	if overflow := len(entries) - maxBodyLines; overflow > 0 {
		if overflow == 1 {
			lines = append(lines, "+1 autre conversation")
		} else {
			lines = append(lines, fmt.Sprintf("+%d autres conversations", overflow))
		}
	}

	lines = append(lines, fmt.Sprintf("%d messages au total", total))

	return &Notification{
		Tag:   Tag,
		Title: fmt.Sprintf("%d conversations • %d messages", len(entries), total),
		Body:  strings.Join(lines, "\n"),
		Icon:  iconOf(entries[0]),
	}
}

// iconOf は通知アイコンを返す。最新の会話のアバターが常に優先される。
func iconOf(entry store.ConversationState) string {
	if entry.ContactImage != "" {
		return entry.ContactImage
	}
	return DefaultIcon
}

// truncate はプレビューを固定の文字数上限に切り詰め、省略記号を付与する。
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit]) + "…"
}
