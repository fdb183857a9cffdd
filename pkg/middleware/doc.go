// Package middleware はワーカーのHTTPサーバーで共通利用するGinミドルウェアを提供する。
//
// JWT認証、パニック回復、CORSの3つを提供する。認証トークン自体は
// 管理コンソール側の認証基盤が発行し、本パッケージは検証のみを行う。
package middleware
