package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bastianwenske/subtitle-translator/internal/jobs"
)

// SQLite limits bound parameters per statement; stay well below it.
const lookupChunkSize = 500

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore caches translations and records pair results.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached translations of texts, keyed by source text.
// Texts without an entry are absent from the result.
func (s *SQLiteStore) Lookup(ctx context.Context, from, to string, texts []string) (map[string]string, error) {
	byHash := make(map[string]string, len(texts))
	for _, text := range texts {
		byHash[textHash(text)] = text
	}
	hashes := make([]string, 0, len(byHash))
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	ret := make(map[string]string)
	for start := 0; start < len(hashes); start += lookupChunkSize {
		chunk := hashes[start:min(start+lookupChunkSize, len(hashes))]

		args := make([]any, 0, len(chunk)+2)
		args = append(args, from, to)
		for _, h := range chunk {
			args = append(args, h)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.db.QueryContext(
			ctx,
			`SELECT text_hash, source_text, translated_text
			 FROM translations
			 WHERE source_lang = ? AND target_lang = ? AND text_hash IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("lookup translations: %w", err)
		}
		for rows.Next() {
			var hash, source, translated string
			if err := rows.Scan(&hash, &source, &translated); err != nil {
				_ = rows.Close()
				return nil, err
			}
			// guard against hash collisions
			if text, ok := byHash[hash]; ok && text == source {
				ret[text] = translated
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return ret, nil
}

// Store saves translations, replacing existing entries.
func (s *SQLiteStore) Store(ctx context.Context, from, to string, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO translations (source_lang, target_lang, text_hash, source_text, translated_text, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_lang, target_lang, text_hash) DO UPDATE SET
			source_text=excluded.source_text,
			translated_text=excluded.translated_text,
			updated_at=excluded.updated_at`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for source, translated := range pairs {
		if _, err := stmt.ExecContext(ctx, from, to, textHash(source), source, translated, now); err != nil {
			return fmt.Errorf("store translation: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertResult records the outcome of one pair in a run.
func (s *SQLiteStore) UpsertResult(ctx context.Context, runID string, record jobs.Record) error {
	errText := record.Error
	if errText == "" && record.Err != nil {
		errText = record.Err.Error()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pair_results (
			run_id, video_path, subtitle_path, status, stage, error, output, cues, duration_ms, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, video_path) DO UPDATE SET
			subtitle_path=excluded.subtitle_path,
			status=excluded.status,
			stage=excluded.stage,
			error=excluded.error,
			output=excluded.output,
			cues=excluded.cues,
			duration_ms=excluded.duration_ms,
			finished_at=excluded.finished_at`,
		runID,
		record.Pair.VideoPath,
		record.Pair.SubtitlePath,
		string(record.Status),
		record.Stage,
		errText,
		record.Output,
		record.Cues,
		record.Duration.Milliseconds(),
		time.Now().UTC(),
	)
	return err
}

// LoadResults returns the results of a run ordered by video path.
func (s *SQLiteStore) LoadResults(ctx context.Context, runID string) ([]PairResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, video_path, subtitle_path, status, stage, error, output, cues, duration_ms, finished_at
		 FROM pair_results
		 WHERE run_id = ?
		 ORDER BY video_path ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]PairResult, 0)
	for rows.Next() {
		var item PairResult
		var status string
		var durationMS int64
		if err := rows.Scan(
			&item.RunID,
			&item.VideoPath,
			&item.SubtitlePath,
			&status,
			&item.Stage,
			&item.Error,
			&item.Output,
			&item.Cues,
			&durationMS,
			&item.FinishedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		item.Duration = time.Duration(durationMS) * time.Millisecond
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
