package presenter

import "github.com/nao1215/chatrelay/internal/aggregate"

// 提示オプションの固定既定値。
const (
	// defaultColor は通知のテーマアクセント色。
	defaultColor = "#00a884"
	// defaultLang は通知のロケール。
	defaultLang = "fr"
	// defaultDir は文字方向。
	defaultDir = "ltr"
)

// defaultVibration は通知の振動パターン（ミリ秒）。
var defaultVibration = []int{200, 100, 200}

// Capabilities はプラットフォームの通知機能の差異を表すフラグ。
// 分岐を散在させず、オプション組み立て関数への入力として一箇所に集める。
type Capabilities struct {
	// Vibration は振動パターンをサポートするか。
	Vibration bool
	// Image は大きなプレビュー画像の表示をサポートするか。
	Image bool
}

// Content は提示する通知の内容。
type Content struct {
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
	// Tag は通知の識別タグ。
	Tag string
	// Icon は通知のアイコンURL。空の場合は既定アイコンが使われる。
	Icon string
	// Badge は通知バッジのURL。空の場合は既定バッジが使われる。
	Badge string
	// Image は大きなプレビュー画像のURL（省略可能）。
	Image string
}

// Options は通知サーフェスに渡す提示オプション。
type Options struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Tag は置換に使われる通知の識別タグ。
	Tag string `json:"tag"`
	// Icon は通知のアイコンURL。
	Icon string `json:"icon"`
	// Badge は通知バッジのURL。常に具体値が設定される。
	Badge string `json:"badge"`
	// Image は大きなプレビュー画像のURL。非対応環境では省かれる。
	Image string `json:"image,omitempty"`
	// Vibrate は振動パターン。非対応環境では省かれる。
	Vibrate []int `json:"vibrate,omitempty"`
	// Silent は通知音を鳴らさないか。同一タグの再提示時にtrueになる。
	Silent bool `json:"silent"`
	// Color はテーマアクセント色。
	Color string `json:"color"`
	// Lang は通知のロケール。
	Lang string `json:"lang"`
	// Dir は文字方向。
	Dir string `json:"dir"`
}

// BuildOptions は通知内容と機能フラグから提示オプションを組み立てる純粋関数。
//
// 非対応の機能はpresent-but-ignoredで残さず省く（オプション全体が
// サーフェス側で黙って拒否されるのを防ぐ）。Badgeは少なくとも1つの
// 対象プラットフォームで必須のため、常に具体値に解決する。
func BuildOptions(caps Capabilities, content Content) *Options {
	opts := &Options{
		Title: content.Title,
		Body:  content.Body,
		Tag:   content.Tag,
		Icon:  content.Icon,
		Badge: content.Badge,
		Color: defaultColor,
		Lang:  defaultLang,
		Dir:   defaultDir,
	}

	if opts.Tag == "" {
		opts.Tag = aggregate.Tag
	}
	if opts.Icon == "" {
		opts.Icon = aggregate.DefaultIcon
	}
	if opts.Badge == "" {
		opts.Badge = aggregate.DefaultBadge
	}

	if caps.Vibration {
		opts.Vibrate = append([]int(nil), defaultVibration...)
	}
	if caps.Image && content.Image != "" {
		opts.Image = content.Image
	}

	return opts
}
