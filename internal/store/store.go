// Package store persists scored pipeline runs as snapshots. One snapshot is
// current at a time; the API serves it.
package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/model"
)

// ErrNotFound is returned when a snapshot does not exist, or when no
// snapshot is current.
var ErrNotFound = eris.New("store: not found")

// CreateOptions describes a new snapshot.
type CreateOptions struct {
	Note        string
	CreatedBy   string
	MakeCurrent bool
	Meta        map[string]any
}

// SubzoneFilter narrows ListSubzones. Zero values match everything.
type SubzoneFilter struct {
	PlanningArea string `json:"planning_area,omitempty"`
	RankTop      int    `json:"rank_top,omitempty"`
}

// Store defines the snapshot persistence interface.
type Store interface {
	// Snapshots
	CreateSnapshot(ctx context.Context, subzones []model.ScoredSubzone, opts CreateOptions) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]model.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	CurrentSnapshot(ctx context.Context) (*model.Snapshot, error)
	SetCurrent(ctx context.Context, id string) error

	// Subzones
	ListSubzones(ctx context.Context, snapshotID string, filter SubzoneFilter) ([]model.ScoredSubzone, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "hscore.db"

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

// ingestRows drops rows without a subzone code and repeated codes. The
// first occurrence of a code wins.
func ingestRows(subzones []model.ScoredSubzone) []model.ScoredSubzone {
	log := zap.L().With(zap.String("component", "store"))

	kept := make([]model.ScoredSubzone, 0, len(subzones))
	seen := make(map[string]bool, len(subzones))
	var blank, dupes int
	for _, s := range subzones {
		switch {
		case s.Subzone == "":
			blank++
		case seen[s.Subzone]:
			dupes++
			log.Warn("duplicate subzone in snapshot, keeping first", zap.String("subzone", s.Subzone))
		default:
			seen[s.Subzone] = true
			kept = append(kept, s)
		}
	}
	if blank > 0 {
		log.Info("skipped rows without a subzone identifier", zap.Int("rows", blank))
	}
	return kept
}

// subzoneColumns is the column order shared by inserts and selects.
var subzoneColumns = []string{
	"subzone_id", "name", "planning_area",
	"population", "pop_0_25", "pop_25_65", "pop_65plus",
	"hawker", "mrt", "bus",
	"h_score", "h_rank", "dem", "sup", "acc",
	"geom_geojson",
}

// subzoneValues flattens s in subzoneColumns order, after the snapshot id.
// geometry is the encoded GeoJSON, or nil.
func subzoneValues(snapshotID string, s *model.ScoredSubzone, geometry any) []any {
	return []any{
		snapshotID, s.Subzone, s.Name, s.PlanningArea,
		s.Population, s.Pop0To25, s.Pop25To65, s.Pop65Plus,
		s.Hawker, s.MRT, s.Bus,
		s.HScore, s.HRank, s.Dem, s.Sup, s.Acc,
		geometry,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubzone(row scannable) (model.ScoredSubzone, error) {
	var (
		s    model.ScoredSubzone
		area *string
		geo  []byte
	)
	err := row.Scan(
		&s.Subzone, &s.Name, &area,
		&s.Population, &s.Pop0To25, &s.Pop25To65, &s.Pop65Plus,
		&s.Hawker, &s.MRT, &s.Bus,
		&s.HScore, &s.HRank, &s.Dem, &s.Sup, &s.Acc,
		&geo,
	)
	if err != nil {
		return s, err
	}
	if area != nil {
		s.PlanningArea = *area
	}
	g, err := model.DecodeGeometry(geo)
	if err != nil {
		return s, eris.Wrapf(err, "subzone %s", s.Subzone)
	}
	s.Geometry = g
	return s, nil
}
