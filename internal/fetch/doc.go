// Package fetch は同一オリジンのアセット取得に対するネットワーク優先の配信方針を提供する。
//
// アセットクラスごとの例外（アイコン・マニフェスト・バージョン付きURLの迂回）を持ち、
// 鮮度をオフライン完全性より優先する。
package fetch
