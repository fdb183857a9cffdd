package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
)

// NamePrefix は本アプリのキャッシュ世代名の接頭辞。
// activate時の掃除はこの接頭辞に一致する世代だけを対象にし、
// 同じストレージを共有する他アプリの世代には触れない。
const NamePrefix = "chatrelay-assets-"

// ShellAssets はinstall時に事前キャッシュするシェルアセットの固定マニフェスト。
var ShellAssets = []string{
	"/",
	"/index.html",
	"/manifest.webmanifest",
	"/icons/icon-192.png",
	"/icons/badge-72.png",
}

// GenerationName はバージョン文字列からキャッシュ世代名を作る。
func GenerationName(version string) string {
	return NamePrefix + version
}

// Entry はキャッシュされた1つのアセット。
type Entry struct {
	// URL はアセットのリクエストパス。
	URL string `db:"url"`
	// ContentType はレスポンスのContent-Type。
	ContentType string `db:"content_type"`
	// Body はレスポンスボディ。
	Body []byte `db:"body"`
}

// Fetcher はアセットを上流から取得する関数。install時の事前キャッシュで使用する。
type Fetcher func(ctx context.Context, path string) (*Entry, error)

// Store はバージョン単位の世代に区切られたアセットキャッシュ。
// 世代は名前（接頭辞+バージョン）で識別され、稼働中の世代は常に1つ。
type Store struct {
	db *sqlx.DB
}

// New は新しいキャッシュストアを生成する。
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Put は指定世代にアセットを保存する。同一URLは上書きされる。
func (s *Store) Put(ctx context.Context, cacheName string, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_name, url, content_type, body, fetched_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(cache_name, url) DO UPDATE SET
			content_type = excluded.content_type,
			body = excluded.body,
			fetched_at = excluded.fetched_at`,
		cacheName, entry.URL, entry.ContentType, entry.Body,
	)
	if err != nil {
		return fmt.Errorf("キャッシュエントリの保存に失敗: %w", err)
	}
	return nil
}

// Get は指定世代からアセットを取得する。見つからない場合は (nil, nil) を返す。
func (s *Store) Get(ctx context.Context, cacheName, url string) (*Entry, error) {
	var entry Entry
	err := s.db.GetContext(ctx, &entry,
		"SELECT url, content_type, body FROM cache_entries WHERE cache_name = ? AND url = ?",
		cacheName, url,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャッシュエントリの取得に失敗: %w", err)
	}
	return &entry, nil
}

// Names は存在する全キャッシュ世代名を返す（他アプリの世代を含む）。
func (s *Store) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		"SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name")
	if err != nil {
		return nil, fmt.Errorf("キャッシュ世代一覧の取得に失敗: %w", err)
	}
	return names, nil
}

// Delete は指定世代をエントリごと削除する。
func (s *Store) Delete(ctx context.Context, cacheName string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE cache_name = ?", cacheName); err != nil {
		return fmt.Errorf("キャッシュ世代の削除に失敗: %w", err)
	}
	return nil
}

// Install は新しい世代を作り、シェルアセットの固定マニフェストを事前キャッシュする。
// 個々のアセット取得の失敗はログに記録して握りつぶす。
// 事前キャッシュの部分的な失敗が新バージョンのactivateを妨げてはならない。
func (s *Store) Install(ctx context.Context, version string, fetch Fetcher) {
	cacheName := GenerationName(version)
	for _, path := range ShellAssets {
		entry, err := fetch(ctx, path)
		if err != nil {
			log.Printf("[Cache] シェルアセットの事前キャッシュに失敗（継続）: path=%s, error=%v", path, err)
			continue
		}
		if err := s.Put(ctx, cacheName, entry); err != nil {
			log.Printf("[Cache] シェルアセットの保存に失敗（継続）: path=%s, error=%v", path, err)
		}
	}
}

// DeleteStale は本アプリの接頭辞を持ち、かつ現行バージョンと異なる世代をすべて削除する。
// 削除した世代名のリストを返す。activate時に呼び出される。
func (s *Store) DeleteStale(ctx context.Context, currentVersion string) ([]string, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}

	current := GenerationName(currentVersion)
	var deleted []string
	for _, name := range names {
		if !strings.HasPrefix(name, NamePrefix) || name == current {
			continue
		}
		if err := s.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}
