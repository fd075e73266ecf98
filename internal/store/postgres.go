package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hscore/internal/db"
	"github.com/sells-group/hscore/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	is_current BOOLEAN NOT NULL DEFAULT false,
	meta       JSONB NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_current ON snapshots(is_current) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC);

CREATE TABLE IF NOT EXISTS subzones (
	snapshot_id   TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	subzone_id    TEXT NOT NULL,
	name          TEXT,
	planning_area TEXT NOT NULL DEFAULT '',
	population    BIGINT NOT NULL DEFAULT 0,
	pop_0_25      BIGINT NOT NULL DEFAULT 0,
	pop_25_65     BIGINT NOT NULL DEFAULT 0,
	pop_65plus    BIGINT NOT NULL DEFAULT 0,
	hawker        INTEGER NOT NULL DEFAULT 0,
	mrt           INTEGER NOT NULL DEFAULT 0,
	bus           INTEGER NOT NULL DEFAULT 0,
	h_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	h_rank        INTEGER NOT NULL DEFAULT 0,
	dem           DOUBLE PRECISION NOT NULL DEFAULT 0,
	sup           DOUBLE PRECISION NOT NULL DEFAULT 0,
	acc           DOUBLE PRECISION NOT NULL DEFAULT 0,
	geom_geojson  JSONB,
	PRIMARY KEY (snapshot_id, subzone_id)
);

CREATE INDEX IF NOT EXISTS idx_subzones_rank ON subzones(snapshot_id, h_rank);
CREATE INDEX IF NOT EXISTS idx_subzones_planning_area ON subzones(snapshot_id, lower(planning_area));
`

const pgSnapshotSelect = `SELECT s.id, s.created_at, s.created_by, s.note, s.is_current, s.meta,
	(SELECT count(*) FROM subzones z WHERE z.snapshot_id = s.id)
FROM snapshots s`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSnapshot(ctx context.Context, subzones []model.ScoredSubzone, opts CreateOptions) (*model.Snapshot, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal meta")
	}

	rows := make([][]any, 0, len(kept))
	for i := range kept {
		g, err := model.EncodeGeometry(kept[i].Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: subzone %s", kept[i].Subzone)
		}
		var geometry any
		if g != nil {
			geometry = g
		}
		rows = append(rows, subzoneValues(snap.ID, &kept[i], geometry))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if opts.MakeCurrent {
		if _, err := tx.Exec(ctx, `UPDATE snapshots SET is_current = false WHERE is_current`); err != nil {
			return nil, eris.Wrap(err, "postgres: unset current snapshot")
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO snapshots (id, created_at, created_by, note, is_current, meta) VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.CreatedAt, snap.CreatedBy, snap.Note, snap.IsCurrent, metaJSON,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}

	columns := append([]string{"snapshot_id"}, subzoneColumns...)
	if _, err := db.CopyFrom(ctx, tx, "subzones", columns, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert subzones for snapshot %s", snap.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit create snapshot")
	}
	return snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, pgSnapshotSelect+` ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots")
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	return s.getSnapshot(ctx, pgSnapshotSelect+` WHERE s.id = $1`, id)
}

func (s *PostgresStore) CurrentSnapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.getSnapshot(ctx, pgSnapshotSelect+` WHERE s.is_current LIMIT 1`)
}

func (s *PostgresStore) getSnapshot(ctx context.Context, query string, args ...any) (*model.Snapshot, error) {
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get snapshot")
	}
	return snap, nil
}

// SetCurrent flips the current pointer to id. An unknown id leaves the
// previous current snapshot in place.
func (s *PostgresStore) SetCurrent(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set current")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE snapshots SET is_current = false WHERE is_current AND id <> $1`, id); err != nil {
		return eris.Wrap(err, "postgres: unset current snapshot")
	}
	tag, err := tx.Exec(ctx, `UPDATE snapshots SET is_current = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set current snapshot %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit set current")
}

func (s *PostgresStore) ListSubzones(ctx context.Context, snapshotID string, filter SubzoneFilter) ([]model.ScoredSubzone, error) {
	query := `SELECT ` + strings.Join(subzoneColumns, ", ") + ` FROM subzones WHERE snapshot_id = $1`
	args := []any{snapshotID}

	if filter.PlanningArea != "" {
		args = append(args, filter.PlanningArea)
		query += fmt.Sprintf(` AND lower(planning_area) = lower($%d)`, len(args))
	}
	if filter.RankTop > 0 {
		args = append(args, filter.RankTop)
		query += fmt.Sprintf(` AND h_rank <= $%d`, len(args))
	}
	query += ` ORDER BY h_rank, subzone_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subzones")
	}
	defer rows.Close()

	var out []model.ScoredSubzone
	for rows.Next() {
		sz, err := scanSubzone(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan subzone")
		}
		out = append(out, sz)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list subzones")
}

func scanSnapshot(row scannable) (*model.Snapshot, error) {
	var (
		snap     model.Snapshot
		metaJSON []byte
	)
	if err := row.Scan(&snap.ID, &snap.CreatedAt, &snap.CreatedBy, &snap.Note, &snap.IsCurrent, &metaJSON, &snap.Subzones); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &snap.Meta); err != nil {
			return nil, eris.Wrapf(err, "unmarshal meta for snapshot %s", snap.ID)
		}
	}
	return &snap, nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}
