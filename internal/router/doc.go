// Package router は通知上のユーザー操作を正しいUI状態に振り分ける。
//
// 会話を開く操作は適切なページへのルーティング（無ければ新規ページの起動）、
// 既読操作はストア更新とページへのベストエフォート配信に変換される。
package router
