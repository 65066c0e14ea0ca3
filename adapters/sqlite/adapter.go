// Package sqlite는 SQLite 백엔드 어댑터를 구현합니다.
// 재시작 후에도 캐시가 유지되어야 하는 단일 프로세스 환경에 적합합니다.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bridgify/rescache/core"
)

// =============================================================================
// SQLite Adapter
// =============================================================================
// 엔트리 봉투는 JSON BLOB으로, 퇴거/청소 질의에 필요한 필드는
// 별도 컬럼으로 저장합니다. 만료된 행은 주기적으로 정리됩니다
// (코어의 lazy 만료는 그대로 동작하며, 청소는 디스크 회수용입니다).
// =============================================================================

// Config는 SQLite 어댑터 설정입니다.
type Config struct {
	// Name은 어댑터 인스턴스 이름입니다.
	Name string

	// Path는 데이터베이스 파일 경로입니다. ":memory:"도 가능합니다.
	Path string

	// WALMode는 WAL 저널 모드 사용 여부입니다. 동시 읽기 성능이 좋아집니다.
	WALMode bool

	// CleanupInterval은 만료 행 정리 주기입니다. 0이면 정리하지 않습니다.
	CleanupInterval time.Duration
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Name:            "sqlite",
		Path:            "rescache.db",
		WALMode:         true,
		CleanupInterval: 5 * time.Minute,
	}
}

// Adapter는 SQLite 어댑터입니다.
type Adapter struct {
	config    *Config
	db        *sql.DB
	connected atomic.Bool
	startedAt time.Time
	stopCh    chan struct{}
}

// New는 새로운 SQLite 어댑터를 생성합니다.
func New(config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Adapter{
		config: config,
		stopCh: make(chan struct{}),
	}
}

func (a *Adapter) Name() string           { return a.config.Name }
func (a *Adapter) Type() core.AdapterType { return core.AdapterTypeSQLite }

// Connect는 데이터베이스를 열고 스키마를 준비합니다.
func (a *Adapter) Connect(ctx context.Context) error {
	dsn := a.config.Path
	if a.config.WALMode {
		dsn += "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("sqlite open: %w", err)
	}
	// SQLite는 단일 writer이므로 커넥션을 하나로 제한합니다.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key          TEXT PRIMARY KEY,
		envelope     BLOB NOT NULL,
		endpoint     TEXT NOT NULL,
		accessed_at  INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		expires_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_accessed ON cache_entries(accessed_at);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("sqlite schema: %w", err)
	}

	a.db = db
	a.connected.Store(true)
	a.startedAt = time.Now()

	if a.config.CleanupInterval > 0 {
		go a.cleanupLoop()
	}
	return nil
}

// cleanupLoop는 만료된 행을 주기적으로 삭제합니다.
func (a *Adapter) cleanupLoop() {
	ticker := time.NewTicker(a.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.db.Exec("DELETE FROM cache_entries WHERE expires_at < ?", time.Now().UnixNano())
		case <-a.stopCh:
			return
		}
	}
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connected.Store(false)
	close(a.stopCh)
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("sqlite: not connected")
	}
	return a.db.PingContext(ctx)
}

// Get은 키로 엔트리를 조회합니다. 없으면 (nil, nil)입니다.
func (a *Adapter) Get(ctx context.Context, key string) (*core.Entry, error) {
	var envelope []byte
	var accessedAt int64
	var accessCount uint64
	err := a.db.QueryRowContext(ctx,
		"SELECT envelope, accessed_at, access_count FROM cache_entries WHERE key = ?", key).
		Scan(&envelope, &accessedAt, &accessCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}

	var entry core.Entry
	if err := json.Unmarshal(envelope, &entry); err != nil {
		return nil, fmt.Errorf("sqlite get: decode entry: %w", err)
	}

	// 접근 메타데이터는 컬럼이 최신입니다. Touch는 봉투를 다시 쓰지 않습니다.
	entry.AccessedAt = time.Unix(0, accessedAt)
	entry.AccessCount = accessCount
	return &entry, nil
}

// Touch는 접근 컬럼만 갱신합니다. 봉투는 그대로 두고 Get이 컬럼 값을
// 덧씌워 읽습니다.
func (a *Adapter) Touch(ctx context.Context, key string, accessedAt time.Time) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE cache_entries
		SET accessed_at = ?, access_count = access_count + 1
		WHERE key = ?`,
		accessedAt.UnixNano(), key)
	if err != nil {
		return fmt.Errorf("sqlite touch: %w", err)
	}
	return nil
}

// Set은 엔트리를 저장합니다. 같은 키는 덮어씁니다.
func (a *Adapter) Set(ctx context.Context, entry *core.Entry) error {
	envelope, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("sqlite set: encode entry: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries
			(key, envelope, endpoint, accessed_at, access_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Key, envelope, entry.Endpoint,
		entry.AccessedAt.UnixNano(), entry.AccessCount, entry.ExpiresAt().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) (bool, error) {
	result, err := a.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("sqlite delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := a.db.QueryRowContext(ctx,
		"SELECT 1 FROM cache_entries WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite has: %w", err)
	}
	return true, nil
}

// Keys는 글롭 패턴을 SQL LIKE로 변환해 조회합니다.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	like := strings.ReplaceAll(pattern, "%", "\\%")
	like = strings.ReplaceAll(like, "_", "\\_")
	like = strings.ReplaceAll(like, "*", "%")
	if pattern == "" {
		like = "%"
	}

	rows, err := a.db.QueryContext(ctx,
		"SELECT key FROM cache_entries WHERE key LIKE ? ESCAPE '\\'", like)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite keys: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (a *Adapter) Clear(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("sqlite clear: %w", err)
	}
	return nil
}

func (a *Adapter) Size(ctx context.Context) (int64, error) {
	var count int64
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite size: %w", err)
	}
	return count, nil
}

// =============================================================================
// VictimSelector: 가장 오래 접근되지 않은 행 퇴거
// =============================================================================

// EvictVictim은 accessed_at이 가장 오래된 행을 삭제합니다.
func (a *Adapter) EvictVictim(ctx context.Context) (string, bool, error) {
	var key string
	err := a.db.QueryRowContext(ctx,
		"SELECT key FROM cache_entries ORDER BY accessed_at ASC LIMIT 1").Scan(&key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite evict: %w", err)
	}

	deleted, err := a.Delete(ctx, key)
	return key, deleted, err
}

// Stats는 어댑터 통계를 반환합니다.
func (a *Adapter) Stats(ctx context.Context) (*core.AdapterStats, error) {
	count, err := a.Size(ctx)
	if err != nil {
		return nil, err
	}

	return &core.AdapterStats{
		Name:       a.config.Name,
		Type:       core.AdapterTypeSQLite,
		Connected:  a.connected.Load(),
		EntryCount: count,
		Uptime:     time.Since(a.startedAt),
	}, nil
}
