// Package presenter は受信イベントを提示可能な通知に変換する。
//
// ペイロードの解析（構造化・プレーンテキスト両対応）、プラットフォーム機能差の
// 吸収、許可ゲート、同一タグ再提示時の消音を担当する。表示そのものはSurface
// インタフェースの実装に委譲する。
package presenter
