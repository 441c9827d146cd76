package scenario

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/davpath"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	metaMode          = "mode"
	metaInfiniteDepth = "infinite_depth"

	kindETag   = "etag"
	kindFileID = "fileid"
)

// SQL statements for scenario state.
const (
	sqlSelectMeta     = `SELECT key, value FROM scenario_meta`
	sqlSelectSpaceIDs = `SELECT actor, name, space_id FROM space_ids`
	sqlSelectCreated  = `SELECT space_id, name, owner FROM created_spaces ORDER BY seq`
	sqlSelectRemember = `SELECT kind, user, space, path, value FROM remembered`
	sqlSelectSessions = `SELECT record FROM upload_sessions ORDER BY id`

	sqlInsertMeta     = `INSERT INTO scenario_meta (key, value) VALUES (?, ?)`
	sqlInsertSpaceID  = `INSERT INTO space_ids (actor, name, space_id) VALUES (?, ?, ?)`
	sqlInsertCreated  = `INSERT INTO created_spaces (space_id, name, owner) VALUES (?, ?, ?)`
	sqlInsertRemember = `INSERT INTO remembered (kind, user, space, path, value) VALUES (?, ?, ?, ?, ?)`
	sqlInsertSession  = `INSERT INTO upload_sessions (id, record, updated_at) VALUES (?, ?, ?)`
)

var clearStatements = []string{
	`DELETE FROM scenario_meta`,
	`DELETE FROM space_ids`,
	`DELETE FROM created_spaces`,
	`DELETE FROM remembered`,
	`DELETE FROM upload_sessions`,
}

// Store persists scenario state between CLI invocations in SQLite.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// OpenStore opens the SQLite database at dbPath and runs migrations.
func OpenStore(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("scenario: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("scenario store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies all pending schema migrations to the database.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("scenario: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("scenario: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("scenario: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the persisted snapshot. An empty database yields an empty
// snapshot with a zero mode.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		SpaceIDs: make(map[[2]string]string),
		ETags:    make(map[Key]string),
		FileIDs:  make(map[Key]string),
	}

	if err := s.loadMeta(ctx, &snap); err != nil {
		return Snapshot{}, err
	}

	err := s.query(ctx, sqlSelectSpaceIDs, func(rows *sql.Rows) error {
		var actor, name, id string
		if err := rows.Scan(&actor, &name, &id); err != nil {
			return err
		}

		snap.SpaceIDs[[2]string{actor, name}] = id

		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	err = s.query(ctx, sqlSelectCreated, func(rows *sql.Rows) error {
		var cs CreatedSpace
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.Owner); err != nil {
			return err
		}

		snap.Created = append(snap.Created, cs)

		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	err = s.query(ctx, sqlSelectRemember, func(rows *sql.Rows) error {
		var kind, value string
		var k Key
		if err := rows.Scan(&kind, &k.User, &k.Space, &k.Path, &value); err != nil {
			return err
		}

		if kind == kindETag {
			snap.ETags[k] = value
		} else {
			snap.FileIDs[k] = value
		}

		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	err = s.query(ctx, sqlSelectSessions, func(rows *sql.Rows) error {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}

		var rec chunk.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("decoding upload session: %w", err)
		}

		snap.Sessions = append(snap.Sessions, rec)

		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func (s *Store) loadMeta(ctx context.Context, snap *Snapshot) error {
	return s.query(ctx, sqlSelectMeta, func(rows *sql.Rows) error {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}

		switch key {
		case metaMode:
			m, err := davpath.ParseMode(value)
			if err != nil {
				return err
			}

			snap.Mode = m
		case metaInfiniteDepth:
			snap.InfiniteDepth = value == "1"
		}

		return nil
	})
}

func (s *Store) query(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scenario: querying state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scenario: scanning state: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("scenario: iterating state rows: %w", err)
	}

	return nil
}

// Save replaces the persisted state with snap in one transaction.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("scenario: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := clearTables(ctx, tx); err != nil {
		return err
	}

	if err := insertSnapshot(ctx, tx, snap, s.nowFunc()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("scenario: committing state: %w", err)
	}

	s.logger.Debug("scenario state saved",
		slog.Int("sessions", len(snap.Sessions)),
		slog.Int("created_spaces", len(snap.Created)),
	)

	return nil
}

// Reset deletes all persisted state.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("scenario: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := clearTables(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("scenario: committing reset: %w", err)
	}

	s.logger.Info("scenario state reset")

	return nil
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range clearStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("scenario: clearing state: %w", err)
		}
	}

	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap Snapshot, now time.Time) error {
	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("scenario: saving state: %w", err)
		}

		return nil
	}

	if snap.Mode.Valid() {
		if err := exec(sqlInsertMeta, metaMode, snap.Mode.String()); err != nil {
			return err
		}
	}

	depth := "0"
	if snap.InfiniteDepth {
		depth = "1"
	}

	if err := exec(sqlInsertMeta, metaInfiniteDepth, depth); err != nil {
		return err
	}

	for k, id := range snap.SpaceIDs {
		if err := exec(sqlInsertSpaceID, k[0], k[1], id); err != nil {
			return err
		}
	}

	for _, cs := range snap.Created {
		if err := exec(sqlInsertCreated, cs.ID, cs.Name, cs.Owner); err != nil {
			return err
		}
	}

	for k, v := range snap.ETags {
		if err := exec(sqlInsertRemember, kindETag, k.User, k.Space, k.Path, v); err != nil {
			return err
		}
	}

	for k, v := range snap.FileIDs {
		if err := exec(sqlInsertRemember, kindFileID, k.User, k.Space, k.Path, v); err != nil {
			return err
		}
	}

	for _, rec := range snap.Sessions {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("scenario: encoding upload session %s: %w", rec.ID, err)
		}

		if err := exec(sqlInsertSession, rec.ID, string(raw), now.Unix()); err != nil {
			return err
		}
	}

	return nil
}
