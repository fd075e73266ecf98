// Package pipeline runs the scoring pass: load layers, collapse station
// exits, join points to subzones, merge the census, score, and export.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/census"
	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/geo"
	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/scorer"
)

// Fatal input errors. Every other input problem degrades to empty data.
var (
	ErrMissingSubzones = eris.New("pipeline: subzone polygons unavailable")
	ErrMissingCensus   = eris.New("pipeline: census table unavailable")
)

// Localizer turns a configured source into a local file path.
type Localizer interface {
	Localize(ctx context.Context, src string) (string, error)
}

// Pipeline orchestrates one scoring run.
type Pipeline struct {
	cfg      *config.Config
	resolver Localizer
	now      func() time.Time
}

// New creates a Pipeline. Sources are localized through resolver.
func New(cfg *config.Config, resolver Localizer) *Pipeline {
	return &Pipeline{cfg: cfg, resolver: resolver, now: time.Now}
}

// StepResult records one pipeline step.
type StepResult struct {
	Name     string `yaml:"name"`
	Duration int64  `yaml:"duration_ms"`
	Status   string `yaml:"status"`
	Error    string `yaml:"error,omitempty"`
}

// InputInfo describes how one input layer was read.
type InputInfo struct {
	Source   string `yaml:"source"`
	CRS      string `yaml:"crs,omitempty"`
	Features int    `yaml:"features"`
	Missing  bool   `yaml:"missing,omitempty"`
}

// Stats holds per-step counts.
type Stats struct {
	Zones              int `yaml:"zones"`
	ZonesRepaired      int `yaml:"zones_repaired"`
	Hawkers            int `yaml:"hawkers"`
	Exits              int `yaml:"mrt_exits"`
	Stations           int `yaml:"mrt_stations"`
	BusStops           int `yaml:"bus_stops"`
	CensusSubzones     int `yaml:"census_subzones"`
	CensusRollups      int `yaml:"census_rollups_dropped"`
	ZonesWithoutCensus int `yaml:"zones_without_census"`
}

// Result is a completed run.
type Result struct {
	StartedAt time.Time
	Subzones  []model.ScoredSubzone
	Steps     []StepResult
	Inputs    map[string]InputInfo
	Stats     Stats
	Weights   scorer.Weights
	Working   geo.CRS
	Projected geo.CRS
}

// Run executes every step and returns the scored subzones in input order,
// with geometry in WGS84.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	res := &Result{
		StartedAt: p.now().UTC(),
		Inputs:    make(map[string]InputInfo),
		Weights:   scorer.WeightsFromConfig(p.cfg.Score),
	}
	if err := res.Weights.Validate(); err != nil {
		return nil, err
	}
	projected, err := geo.LookupCRS(p.cfg.Score.ProjectedCRS)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: score.projected_crs")
	}
	if projected.Geographic() {
		return nil, eris.Errorf("pipeline: score.projected_crs %s is not a projected CRS", projected)
	}
	res.Projected = projected
	log.Info("pipeline: starting run")

	step := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		sr := StepResult{Name: name, Duration: time.Since(start).Milliseconds(), Status: "complete"}
		if err != nil {
			sr.Status = "failed"
			sr.Error = err.Error()
			log.Error("pipeline: step failed", zap.String("step", name), zap.Int64("duration_ms", sr.Duration), zap.Error(err))
		} else {
			log.Info("pipeline: step complete", zap.String("step", name), zap.Int64("duration_ms", sr.Duration))
		}
		res.Steps = append(res.Steps, sr)
		return err
	}

	var (
		zones    []geo.Zone
		hawkers  []*geom.Point
		busStops []*geom.Point
		exits    []geo.Exit
		stations []geo.Station
		table    *census.Table
		counts   joinCounts
	)

	// Step 1: load and normalise every layer into the subzone layer's CRS.
	if err := step("load", func() error {
		subzones, err := p.loadLayer(ctx, "subzones", p.cfg.Inputs.Subzones, res)
		if err != nil {
			return eris.Wrapf(ErrMissingSubzones, "%v", err)
		}
		res.Working = subzones.CRS

		zones = geo.ZonesFromLayer(subzones)
		if len(zones) == 0 {
			return eris.Wrapf(ErrMissingSubzones, "no usable polygons in %s", subzones.Source)
		}
		res.Stats.ZonesRepaired = geo.RepairZones(zones)
		res.Stats.Zones = len(zones)

		hawkerLayer, err := p.optionalLayer(ctx, "hawkers", p.cfg.Inputs.Hawkers, res)
		if err != nil {
			return err
		}
		hawkers = geo.PointsFromLayer(hawkerLayer)
		res.Stats.Hawkers = len(hawkers)

		exitLayer, err := p.optionalLayer(ctx, "mrt_exits", p.cfg.Inputs.MRTExits, res)
		if err != nil {
			return err
		}
		exits = geo.ExitsFromLayer(exitLayer)
		res.Stats.Exits = len(exits)

		busLayer, err := p.optionalLayer(ctx, "bus_stops", p.cfg.Inputs.BusStops, res)
		if err != nil {
			return err
		}
		busStops = geo.PointsFromLayer(busLayer)
		res.Stats.BusStops = len(busStops)

		log.Info("pipeline: layers loaded",
			zap.Int("zones", len(zones)),
			zap.Int("zones_repaired", res.Stats.ZonesRepaired),
			zap.Int("hawkers", len(hawkers)),
			zap.Int("mrt_exits", len(exits)),
			zap.Int("bus_stops", len(busStops)),
			zap.String("working_crs", res.Working.Code),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 2: one representative point per station.
	if err := step("stations", func() error {
		var err error
		stations, err = geo.CollapseStations(exits, res.Working, projected)
		if err != nil {
			return err
		}
		res.Stats.Stations = len(stations)
		log.Info("pipeline: exits collapsed", zap.Int("exits", len(exits)), zap.Int("stations", len(stations)))
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 3: spatial joins.
	if err := step("join", func() error {
		ix := geo.NewPolygonIndex(zones)
		counts = joinCounts{
			hawker: ix.CountPoints(hawkers, geo.Intersects),
			bus:    ix.CountPoints(busStops, geo.Intersects),
			mrt:    ix.CountStations(stations, geo.Within),
		}
		log.Info("pipeline: points joined",
			zap.Int("zones_with_hawkers", len(counts.hawker)),
			zap.Int("zones_with_bus_stops", len(counts.bus)),
			zap.Int("zones_with_stations", len(counts.mrt)),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 4: demographics.
	if err := step("census", func() error {
		var err error
		table, err = p.loadCensus(ctx, res)
		if err != nil {
			return eris.Wrapf(ErrMissingCensus, "%v", err)
		}
		res.Stats.CensusSubzones = table.Len()
		res.Stats.CensusRollups = table.Rollups
		return nil
	}); err != nil {
		return nil, err
	}

	// Steps 5-7: merge, score, reproject for export.
	if err := step("score", func() error {
		inputs := make([]scorer.Input, len(zones))
		out := make([]model.ScoredSubzone, len(zones))
		for i, z := range zones {
			key := z.Key()
			rec, ok := table.Lookup(census.Key(z.Subzone))
			if !ok {
				res.Stats.ZonesWithoutCensus++
				log.Warn("pipeline: subzone has no census row, population counted as zero", zap.String("subzone", z.Subzone))
			}
			out[i] = model.ScoredSubzone{
				Name:         z.Name,
				Subzone:      z.Subzone,
				PlanningArea: z.PlanningArea,
				Population:   rec.Total,
				Pop0To25:     rec.Youth,
				Pop25To65:    rec.Working,
				Pop65Plus:    rec.Elderly,
				Hawker:       counts.hawker[key],
				MRT:          counts.mrt[key],
				Bus:          counts.bus[key],
			}
			inputs[i] = scorer.Input{
				Population: rec.Total,
				Hawker:     out[i].Hawker,
				MRT:        out[i].MRT,
				Bus:        out[i].Bus,
			}
		}

		for i, r := range scorer.Score(inputs, res.Weights) {
			out[i].Dem, out[i].Sup, out[i].Acc = r.Dem, r.Sup, r.Acc
			out[i].HScore, out[i].HRank = r.HScore, r.HRank
		}

		for i, z := range zones {
			g, err := geo.Transform(z.Geometry, res.Working, geo.WGS84)
			if err != nil {
				return eris.Wrapf(err, "pipeline: reproject %s", z.Subzone)
			}
			out[i].Geometry = g
		}
		res.Subzones = out
		log.Info("pipeline: subzones scored",
			zap.Int("subzones", len(out)),
			zap.Int("without_census", res.Stats.ZonesWithoutCensus),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// Top returns up to n subzones ordered by rank, ties by subzone code.
func (r *Result) Top(n int) []model.ScoredSubzone {
	return topByRank(r.Subzones, n)
}

type joinCounts struct {
	hawker map[geo.ZoneKey]int
	bus    map[geo.ZoneKey]int
	mrt    map[geo.ZoneKey]int
}

func layerSpec(lc config.LayerConfig) (geo.LayerSpec, error) {
	spec := geo.LayerSpec{DefaultCRS: geo.WGS84, Force: lc.ForceCRS}
	if lc.CRS != "" {
		c, err := geo.LookupCRS(lc.CRS)
		if err != nil {
			return spec, err
		}
		spec.DefaultCRS = c
	}
	return spec, nil
}

// loadLayer localizes and reads one layer in its own CRS.
func (p *Pipeline) loadLayer(ctx context.Context, name string, lc config.LayerConfig, res *Result) (*geo.Layer, error) {
	if lc.Path == "" {
		return nil, eris.Errorf("pipeline: no source configured for %s", name)
	}
	spec, err := layerSpec(lc)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s crs", name)
	}
	path, err := p.resolver.Localize(ctx, lc.Path)
	if err != nil {
		return nil, err
	}
	layer, err := geo.LoadLayer(path, spec)
	if err != nil {
		return nil, err
	}
	res.Inputs[name] = InputInfo{Source: lc.Path, CRS: layer.CRS.Code, Features: layer.Len()}
	return layer, nil
}

// optionalLayer loads a point layer into the working CRS, degrading to an
// empty layer when the source is absent or unreadable. Only a reprojection
// failure is returned.
func (p *Pipeline) optionalLayer(ctx context.Context, name string, lc config.LayerConfig, res *Result) (*geo.Layer, error) {
	layer, err := p.loadLayer(ctx, name, lc, res)
	if err == nil {
		out, err := layer.Reproject(res.Working)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s", name)
		}
		return out, nil
	}
	zap.L().Warn("pipeline: optional layer unavailable, counts default to zero",
		zap.String("layer", name),
		zap.String("source", lc.Path),
		zap.Error(err),
	)
	res.Inputs[name] = InputInfo{Source: lc.Path, Missing: true}
	return geo.EmptyLayer(res.Working), nil
}

func (p *Pipeline) loadCensus(ctx context.Context, res *Result) (*census.Table, error) {
	src := p.cfg.Inputs.Census.Path
	if src == "" {
		return nil, eris.New("pipeline: no source configured for census")
	}
	path, err := p.resolver.Localize(ctx, src)
	if err != nil {
		return nil, err
	}
	cols := census.Columns{
		ID:      p.cfg.Census.IDColumn,
		Youth:   p.cfg.Census.Youth,
		Working: p.cfg.Census.Working,
		Elderly: p.cfg.Census.Elderly,
	}
	table, err := census.Load(ctx, path, cols, census.LoadOptions{
		Sheet:    p.cfg.Census.Sheet,
		Encoding: p.cfg.Census.Encoding,
	})
	if err != nil {
		return nil, err
	}
	res.Inputs["census"] = InputInfo{Source: src, Features: table.Len()}
	return table, nil
}
