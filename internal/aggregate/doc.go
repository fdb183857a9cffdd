// Package aggregate は複数の未読会話を単一の合体通知に合成するアルゴリズムを提供する。
//
// 入力は集約ストアのスナップショットのみで、出力は決定的。
// 差分更新は行わず、変更のたびに全体を再計算する。
package aggregate
