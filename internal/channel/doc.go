// Package channel はバックグラウンドワーカーとフォアグラウンドページの間の
// 双方向メッセージチャネルを提供する。
//
// 共有メモリは存在せず、協調はすべて非同期のメッセージパッシングか
// 永続ストア経由で行われる。配送はベストエフォート。
package channel
