package presenter

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/nao1215/chatrelay/internal/aggregate"
)

// defaultTitle は構造化されていないプッシュペイロードに使う既定タイトル。
const defaultTitle = "Nouveau message"

// Payload は受信プッシュペイロードの構造化された形。
// すべてのフィールドが省略可能で、欠けたものは既定値で補われる。
type Payload struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// ConversationID はメッセージが属する会話の識別子。
	ConversationID string `json:"conversationId"`
	// Icon はアイコンURL。
	Icon string `json:"icon"`
	// Badge はバッジURL。
	Badge string `json:"badge"`
	// Image は大きなプレビュー画像のURL。
	Image string `json:"image"`
}

// ParsePayload は受信プッシュペイロードを解析する。
// JSONとして解析できない入力はプレーンテキストとして扱い、本文に格納して
// 既定タイトルを付ける。決して失敗せず、イベントを取りこぼさない。
func ParsePayload(raw []byte) *Payload {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Title == "" {
			payload.Title = defaultTitle
		}
		return &payload
	}

	return &Payload{
		Title: defaultTitle,
		Body:  strings.TrimSpace(string(raw)),
	}
}

// Presenter は受信イベントを提示可能な通知に変換してサーフェスに表示する。
// すべての提示の前に許可ゲートが挟まり、許可が無ければ静かに何もしない。
type Presenter struct {
	// surface は通知面への操作。
	surface Surface
	// caps はプラットフォームの機能フラグ。
	caps Capabilities
}

// New は新しいPresenterを生成する。
func New(surface Surface, caps Capabilities) *Presenter {
	return &Presenter{surface: surface, caps: caps}
}

// Present は集約結果を固定タグの通知として提示する。
// nが nil（未読0件）の場合は固定タグの通知を閉じる。
//
// 初回の提示は音を鳴らし、同一タグの再提示（合体更新）はsilentにする。
func (p *Presenter) Present(ctx context.Context, n *aggregate.Notification) {
	if n == nil {
		if err := p.surface.Close(ctx, aggregate.Tag); err != nil {
			log.Printf("[Presenter] 通知のクローズに失敗: %v", err)
		}
		return
	}

	p.show(ctx, Content{
		Title: n.Title,
		Body:  n.Body,
		Tag:   n.Tag,
		Icon:  n.Icon,
	})
}

// PresentDirect は集約を経由しない通知（会話IDを持たないプッシュ等）を提示する。
func (p *Presenter) PresentDirect(ctx context.Context, payload *Payload) {
	p.show(ctx, Content{
		Title: payload.Title,
		Body:  payload.Body,
		Tag:   aggregate.Tag,
		Icon:  payload.Icon,
		Badge: payload.Badge,
		Image: payload.Image,
	})
}

// show は許可ゲートを通した上で通知を表示する共通処理。
func (p *Presenter) show(ctx context.Context, content Content) {
	if !p.permitted(ctx) {
		return
	}

	opts := BuildOptions(p.caps, content)

	// 同一タグの通知が既に表示されている場合、置換は音を鳴らさない。
	shown, err := p.surface.Shown(ctx, opts.Tag)
	if err != nil {
		log.Printf("[Presenter] 表示状態の確認に失敗: %v", err)
	}
	opts.Silent = shown

	if err := p.surface.Show(ctx, opts); err != nil {
		// 提示の失敗はホストに波及させない。通知が出ないだけで済ませる。
		log.Printf("[Presenter] 通知の表示に失敗: %v", err)
	}
}

// permitted は通知許可の有無を確認し、未決であれば許可要求を駆動する。
// 拒否（または確認不能）の場合はfalseを返し、呼び出し側は何もしない。
func (p *Presenter) permitted(ctx context.Context) bool {
	perm, err := p.surface.Permission(ctx)
	if err != nil {
		log.Printf("[Presenter] 許可状態の取得に失敗: %v", err)
		return false
	}

	if perm == PermissionDefault {
		perm, err = p.surface.RequestPermission(ctx)
		if err != nil {
			log.Printf("[Presenter] 許可要求に失敗: %v", err)
			return false
		}
	}
	return perm == PermissionGranted
}
