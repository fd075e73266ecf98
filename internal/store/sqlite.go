package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hscore/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at dsn.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	created_by TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	is_current INTEGER NOT NULL DEFAULT 0,
	meta       TEXT NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_current ON snapshots(is_current) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);

CREATE TABLE IF NOT EXISTS subzones (
	snapshot_id   TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	subzone_id    TEXT NOT NULL,
	name          TEXT,
	planning_area TEXT NOT NULL DEFAULT '',
	population    INTEGER NOT NULL DEFAULT 0,
	pop_0_25      INTEGER NOT NULL DEFAULT 0,
	pop_25_65     INTEGER NOT NULL DEFAULT 0,
	pop_65plus    INTEGER NOT NULL DEFAULT 0,
	hawker        INTEGER NOT NULL DEFAULT 0,
	mrt           INTEGER NOT NULL DEFAULT 0,
	bus           INTEGER NOT NULL DEFAULT 0,
	h_score       REAL NOT NULL DEFAULT 0,
	h_rank        INTEGER NOT NULL DEFAULT 0,
	dem           REAL NOT NULL DEFAULT 0,
	sup           REAL NOT NULL DEFAULT 0,
	acc           REAL NOT NULL DEFAULT 0,
	geom_geojson  TEXT,
	PRIMARY KEY (snapshot_id, subzone_id)
);

CREATE INDEX IF NOT EXISTS idx_subzones_rank ON subzones(snapshot_id, h_rank);
`

const sqliteSnapshotSelect = `SELECT s.id, s.created_at, s.created_by, s.note, s.is_current, s.meta,
	(SELECT count(*) FROM subzones z WHERE z.snapshot_id = s.id)
FROM snapshots s`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, subzones []model.ScoredSubzone, opts CreateOptions) (*model.Snapshot, error) {
	kept := ingestRows(subzones)
	snap := &model.Snapshot{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		CreatedBy: opts.CreatedBy,
		Note:      opts.Note,
		IsCurrent: opts.MakeCurrent,
		Meta:      opts.Meta,
		Subzones:  len(kept),
	}

	metaJSON, err := marshalMeta(opts.Meta)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal meta")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	if opts.MakeCurrent {
		if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET is_current = 0 WHERE is_current = 1`); err != nil {
			return nil, eris.Wrap(err, "sqlite: unset current snapshot")
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at, created_by, note, is_current, meta) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.CreatedAt, snap.CreatedBy, snap.Note, snap.IsCurrent, string(metaJSON),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(subzoneColumns)+1), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subzones (snapshot_id, `+strings.Join(subzoneColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare subzone insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range kept {
		g, err := model.EncodeGeometry(kept[i].Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: subzone %s", kept[i].Subzone)
		}
		var geometry any
		if g != nil {
			geometry = string(g)
		}
		if _, err := stmt.ExecContext(ctx, subzoneValues(snap.ID, &kept[i], geometry)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert subzone %s", kept[i].Subzone)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSnapshotSelect+` ORDER BY s.created_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots")
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	return s.getSnapshot(ctx, sqliteSnapshotSelect+` WHERE s.id = ?`, id)
}

func (s *SQLiteStore) CurrentSnapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.getSnapshot(ctx, sqliteSnapshotSelect+` WHERE s.is_current = 1 LIMIT 1`)
}

func (s *SQLiteStore) getSnapshot(ctx context.Context, query string, args ...any) (*model.Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) SetCurrent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set current")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET is_current = 0 WHERE is_current = 1 AND id <> ?`, id); err != nil {
		return eris.Wrap(err, "sqlite: unset current snapshot")
	}
	res, err := tx.ExecContext(ctx, `UPDATE snapshots SET is_current = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set current snapshot %s", id)
	}
	if err := checkRowsAffected(res, "snapshot", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit set current")
}

func (s *SQLiteStore) ListSubzones(ctx context.Context, snapshotID string, filter SubzoneFilter) ([]model.ScoredSubzone, error) {
	query := `SELECT ` + strings.Join(subzoneColumns, ", ") + ` FROM subzones WHERE snapshot_id = ?`
	args := []any{snapshotID}

	if filter.PlanningArea != "" {
		query += ` AND planning_area = ? COLLATE NOCASE`
		args = append(args, filter.PlanningArea)
	}
	if filter.RankTop > 0 {
		query += ` AND h_rank <= ?`
		args = append(args, filter.RankTop)
	}
	query += ` ORDER BY h_rank, subzone_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subzones")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScoredSubzone
	for rows.Next() {
		sz, err := scanSubzone(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subzone")
		}
		out = append(out, sz)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list subzones")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
