package store

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/chatrelay/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB はワーカーの共有SQLiteデータベースを開き、マイグレーションを適用する。
// 集約ストアとアセットキャッシュが同じDBファイルを共有する。
func OpenDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// 並行読み取りに強いWALモードを有効にし、ロック競合時は待機させる。
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("WALモードの有効化に失敗: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("busy_timeoutの設定に失敗: %w", err)
	}

	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	return db, nil
}
