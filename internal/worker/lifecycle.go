package worker

import (
	"context"
	"log"
	"sync"

	"github.com/nao1215/chatrelay/internal/cache"
	"github.com/nao1215/chatrelay/internal/channel"
	"github.com/nao1215/chatrelay/pkg/message"
)

// State はワーカーのライフサイクル状態。
type State string

const (
	// StateInstalling は新バージョンのシェルアセットを事前キャッシュ中であることを表す。
	StateInstalling State = "installing"
	// StateWaiting はインストール済みだが制御権をまだ得ていないことを表す。
	// skip-waitingの明示的な指示があるまで進まない。
	StateWaiting State = "waiting"
	// StateActivating は古い世代の掃除とページのclaimを実行中であることを表す。
	StateActivating State = "activating"
	// StateActivated は現行バージョンが制御権を持っていることを表す。
	StateActivated State = "activated"
)

// Lifecycle はバージョンで区切られたワーカーの install → waiting → activating → activated
// の状態遷移を管理する。
//
// 「新しいコードをダウンロードした」と「新しいコードが制御している」を分離し、
// 操作中のページが途中でネットワーク能力を失うのを防ぐ。明示的に要求されれば
// 積極的な切り替え（skip-waiting）も許す。
type Lifecycle struct {
	// mu は状態遷移を保護するミューテックス。
	mu sync.Mutex
	// state は現在のライフサイクル状態。
	state State
	// version は現行ワーカーのバージョン文字列。
	version string
	// caches はアセットキャッシュ。
	caches *cache.Store
	// hub はページへのメッセージチャネル。
	hub *channel.Hub
}

// NewLifecycle は新しいライフサイクル管理を生成する。
func NewLifecycle(version string, caches *cache.Store, hub *channel.Hub) *Lifecycle {
	return &Lifecycle{
		state:   StateInstalling,
		version: version,
		caches:  caches,
		hub:     hub,
	}
}

// State は現在のライフサイクル状態を返す。
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Version は現行ワーカーのバージョン文字列を返す。
func (l *Lifecycle) Version() string {
	return l.version
}

// Install は現行バージョンの世代にシェルアセットを事前キャッシュし、waiting状態に進める。
// 事前キャッシュの部分的な失敗はデプロイを失敗させない（cache.Install側で握りつぶす）。
func (l *Lifecycle) Install(ctx context.Context, fetch cache.Fetcher) {
	log.Printf("[Lifecycle] install開始: version=%s", l.version)
	l.caches.Install(ctx, l.version, fetch)

	l.mu.Lock()
	l.state = StateWaiting
	l.mu.Unlock()
	log.Printf("[Lifecycle] waiting状態に遷移しました: version=%s", l.version)
}

// SkipWaiting はwaiting状態のワーカーを即時activateする。
// 自身のコントローラ、または任意のフォアグラウンドページからの
// メッセージのどちらからでも呼び出される。waiting以外の状態では何もしない。
func (l *Lifecycle) SkipWaiting(ctx context.Context) {
	l.mu.Lock()
	if l.state != StateWaiting {
		l.mu.Unlock()
		return
	}
	l.state = StateActivating
	l.mu.Unlock()

	l.activate(ctx)
}

// activate は古い世代の掃除・ページのclaim・更新通知のブロードキャストを行い、
// activated状態に遷移する。
func (l *Lifecycle) activate(ctx context.Context) {
	deleted, err := l.caches.DeleteStale(ctx, l.version)
	if err != nil {
		// 掃除の失敗はactivateを妨げない。次回のactivateで再試行される。
		log.Printf("[Lifecycle] 古いキャッシュ世代の削除に失敗: %v", err)
	}
	for _, name := range deleted {
		log.Printf("[Lifecycle] 古いキャッシュ世代を削除しました: %s", name)
	}

	// リロードを要求せず、開いている全ページを新しいワーカーの管理下に置く。
	l.hub.Claim()

	// 未制御のページを含む全ページに更新を通知する。
	env, err := message.New(message.TypeUpdateAvailable, message.UpdateAvailableData{Version: l.version})
	if err != nil {
		log.Printf("[Lifecycle] 更新通知メッセージの作成に失敗: %v", err)
	} else {
		l.hub.Broadcast(env)
	}

	l.mu.Lock()
	l.state = StateActivated
	l.mu.Unlock()
	log.Printf("[Lifecycle] activate完了: version=%s", l.version)
}
