// Package cache はバージョンで世代管理される静的アセットキャッシュを提供する。
//
// 世代は「接頭辞+バージョン」の名前で区切られ、新バージョンのactivate時に
// 古い世代が一括削除される。稼働中の世代は常に1つ。
package cache
