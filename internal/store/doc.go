// Package store は会話ごとの未読状態を保持する永続集約ストアを提供する。
//
// ページのリロードやバックグラウンドワーカーの再起動をまたいで生き残る
// 唯一の共有状態であり、提示される通知は常にこのストアから再計算できる。
package store
