// Package worker はバックグラウンドワーカーの実装を提供する。
//
// ページが1つも開いていなくてもプッシュを受信して通知を提示し、
// アセット配信・ページチャネル・バージョン世代のライフサイクルを束ねる。
// ホストはこのプロセスをいつでも停止・再起動してよく、
// すべての操作は永続ストアから再開可能に作られている。
package worker
