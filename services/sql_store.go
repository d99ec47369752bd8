package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // register the "sqlite" driver

	"prestige_server/assets"
	"prestige_server/config"
	"prestige_server/logging"
	"prestige_server/models"
)

// Rows per multi-value INSERT; keeps the bind count below SQLite's limit.
const sqlInsertChunk = 500

// SQLStore implements PreferenceStore and MatchStore on SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	stbl    sq.StatementBuilderType
	backend string
	now     func() time.Time
}

var (
	_ PreferenceStore = (*SQLStore)(nil)
	_ MatchStore      = (*SQLStore)(nil)
)

// OpenSQLStore opens the database for backend ("sqlite" or "postgres").
// SQLite runs with a single connection so that writers never contend.
func OpenSQLStore(backend, dsn string) (*SQLStore, error) {
	var driver string
	switch backend {
	case config.BackendSQLite:
		prepared, err := prepareSQLiteDSN(dsn)
		if err != nil {
			return nil, err
		}
		driver, dsn = "sqlite", prepared
	case config.BackendPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported sql backend %q", backend)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if backend == config.BackendSQLite {
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(db, backend), nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, backend string) *SQLStore {
	stbl := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if backend == config.BackendPostgres {
		stbl = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, stbl: stbl, backend: backend, now: time.Now}
}

// prepareSQLiteDSN sets WAL, a busy timeout and immediate transactions unless the DSN overrides them.
func prepareSQLiteDSN(uri string) (string, error) {
	query := url.Values{}
	if i := strings.Index(uri, "?"); i != -1 {
		var err error
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}
		uri = uri[:i]
	}

	foundJournalMode, foundBusyTimeout := false, false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}
	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(5000)")
	}
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}
	return uri + "?" + query.Encode(), nil
}

// DB exposes the handle for stats collection.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

// Migrate applies the embedded migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	dialect := "sqlite3"
	if s.backend == config.BackendPostgres {
		dialect = "postgres"
	}

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(assets.EmbedMigrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, assets.MigrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logging.Info().Str("backend", s.backend).Int64("version", version).Msg("✅ Schema up to date")
	return nil
}

func (s *SQLStore) RegisterProfile(ctx context.Context, profileID string) (bool, error) {
	now := s.now().UnixMilli()
	res, err := s.stbl.
		Insert("profiles").
		Columns("profile_id", "pref_count", "created_at", "updated_at").
		Values(profileID, 0, now, now).
		Suffix("ON CONFLICT (profile_id) DO NOTHING").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return false, handleSQLError(err, "register profile "+profileID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, handleSQLError(err, "register profile "+profileID)
	}
	return n == 1, nil
}

func (s *SQLStore) AppendPreference(ctx context.Context, actorID, targetID string) (models.AppendResult, error) {
	var result models.AppendResult
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		actorQuery := s.stbl.Select("pref_count").From("profiles").Where(sq.Eq{"profile_id": actorID})
		if s.backend == config.BackendPostgres {
			actorQuery = actorQuery.Suffix("FOR UPDATE")
		}
		var count int
		if err := actorQuery.RunWith(tx).QueryRowContext(ctx).Scan(&count); err != nil {
			return handleSQLError(err, "actor "+actorID)
		}

		var one int
		err := s.stbl.Select("1").From("profiles").
			Where(sq.Eq{"profile_id": targetID}).
			RunWith(tx).QueryRowContext(ctx).Scan(&one)
		if err != nil {
			return handleSQLError(err, "target "+targetID)
		}

		err = s.stbl.Select("1").From("preferences").
			Where(sq.Eq{"profile_id": actorID, "target_id": targetID}).
			RunWith(tx).QueryRowContext(ctx).Scan(&one)
		switch {
		case err == nil:
			result = models.AppendResult{Length: count}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return handleSQLError(err, "lookup preference")
		}

		now := s.now().UnixMilli()
		_, err = s.stbl.
			Insert("preferences").
			Columns("profile_id", "position", "target_id", "created_at").
			Values(actorID, count, targetID, now).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return handleSQLError(err, "insert preference")
		}
		_, err = s.stbl.
			Update("profiles").
			Set("pref_count", count+1).
			Set("updated_at", now).
			Where(sq.Eq{"profile_id": actorID}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return handleSQLError(err, "update profile")
		}

		result = models.AppendResult{Length: count + 1, Appended: true}
		return nil
	})
	return result, err
}

func (s *SQLStore) GetPreferences(ctx context.Context, profileID string) (*models.PreferenceRecord, error) {
	record := &models.PreferenceRecord{PK: models.ProfileKey(profileID), ProfileID: profileID, Preferences: []string{}}
	err := s.inTx(ctx, s.readTxOptions(), func(tx *sql.Tx) error {
		var createdAt, updatedAt int64
		err := s.stbl.Select("pref_count", "created_at", "updated_at").From("profiles").
			Where(sq.Eq{"profile_id": profileID}).
			RunWith(tx).QueryRowContext(ctx).
			Scan(&record.Version, &createdAt, &updatedAt)
		if err != nil {
			return handleSQLError(err, "profile "+profileID)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC().Format(time.RFC3339)
		record.UpdatedAt = time.UnixMilli(updatedAt).UTC().Format(time.RFC3339)

		rows, err := s.stbl.Select("target_id").From("preferences").
			Where(sq.Eq{"profile_id": profileID}).
			OrderBy("position").
			RunWith(tx).QueryContext(ctx)
		if err != nil {
			return handleSQLError(err, "read preferences")
		}
		defer rows.Close()
		for rows.Next() {
			var target string
			if err := rows.Scan(&target); err != nil {
				return handleSQLError(err, "scan preference")
			}
			record.Preferences = append(record.Preferences, target)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *SQLStore) Snapshot(ctx context.Context) (map[string][]string, error) {
	prefs := map[string][]string{}
	err := s.inTx(ctx, s.readTxOptions(), func(tx *sql.Tx) error {
		rows, err := s.stbl.Select("profile_id").From("profiles").RunWith(tx).QueryContext(ctx)
		if err != nil {
			return handleSQLError(err, "read profiles")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return handleSQLError(err, "scan profile")
			}
			prefs[id] = []string{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return handleSQLError(err, "read profiles")
		}

		rows, err = s.stbl.Select("profile_id", "target_id").From("preferences").
			OrderBy("profile_id", "position").
			RunWith(tx).QueryContext(ctx)
		if err != nil {
			return handleSQLError(err, "read preferences")
		}
		defer rows.Close()
		for rows.Next() {
			var id, target string
			if err := rows.Scan(&id, &target); err != nil {
				return handleSQLError(err, "scan preference")
			}
			prefs[id] = append(prefs[id], target)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// PublishMatches replaces the previous run's rows with records in one transaction.
func (s *SQLStore) PublishMatches(ctx context.Context, run *models.MatchRun, records []models.MatchRecord) error {
	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		_, err := s.stbl.
			Insert("match_runs").
			Columns("run_id", "status", "profiles", "pairs", "unmatched", "passes", "displacements", "started_at", "finished_at").
			Values(run.RunID, models.RunStatusCommitted, run.Profiles, run.Pairs, run.Unmatched, run.Passes, run.Displacements,
				run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli()).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return handleSQLError(err, "insert match run "+run.RunID)
		}

		if _, err := s.stbl.Delete("matches").RunWith(tx).ExecContext(ctx); err != nil {
			return handleSQLError(err, "clear matches")
		}

		for start := 0; start < len(records); start += sqlInsertChunk {
			end := min(start+sqlInsertChunk, len(records))
			insert := s.stbl.Insert("matches").Columns("profile_id", "partner_id", "run_id", "matched_at")
			for _, r := range records[start:end] {
				insert = insert.Values(r.ProfileID, r.PartnerID, r.RunID, r.MatchedAt)
			}
			if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
				return handleSQLError(err, "insert matches")
			}
		}
		return nil
	})
}

func (s *SQLStore) GetMatch(ctx context.Context, profileID string) (*models.MatchRecord, error) {
	var r models.MatchRecord
	err := s.stbl.Select("profile_id", "partner_id", "run_id", "matched_at").From("matches").
		Where(sq.Eq{"profile_id": profileID}).
		RunWith(s.db).QueryRowContext(ctx).
		Scan(&r.ProfileID, &r.PartnerID, &r.RunID, &r.MatchedAt)
	if err != nil {
		return nil, handleSQLError(err, "match for "+profileID)
	}
	r.PK = models.ProfileKey(r.ProfileID)
	r.SK = models.MatchSortKey(r.MatchedAt, r.RunID)
	return &r, nil
}

func (s *SQLStore) readTxOptions() *sql.TxOptions {
	if s.backend == config.BackendPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func handleSQLError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("%s: sql error: %w", what, err)
}
