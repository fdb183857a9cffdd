// Package page はフォアグラウンドページ側のメッセージチャネルクライアントを提供する。
//
// ワーカーからルーティングされた指示（会話を開く、既読の伝播、更新通知）を
// 種類ごとのハンドラにディスパッチし、skip-waiting要求を送信できる。
package page
