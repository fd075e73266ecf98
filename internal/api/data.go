package api

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/store"
)

const (
	currentRef     = "current"
	geoJSONType    = "application/geo+json"
	geoJSONSuffix  = ".geojson"
	emptyFeatureFC = `{"type":"FeatureCollection","features":[]}` + "\n"
)

// resolveSnapshot maps "", "current" or an id to a snapshot.
func (s *Server) resolveSnapshot(ctx context.Context, ref string) (*model.Snapshot, error) {
	if ref == "" || ref == currentRef {
		return s.store.CurrentSnapshot(ctx)
	}
	return s.store.GetSnapshot(ctx, ref)
}

func snapshotRef(r *http.Request) string {
	ref := strings.TrimSpace(r.URL.Query().Get("snapshot"))
	if ref == "" {
		return currentRef
	}
	return ref
}

func writeGeoJSON(w http.ResponseWriter, body []byte, cache string) {
	w.Header().Set("Content-Type", geoJSONType)
	if cache != "" {
		w.Header().Set("X-Cache", cache)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleOpportunity serves GET /api/opportunity.geojson?snapshot=<id|current>.
// With no current snapshot the collection is empty.
func (s *Server) handleOpportunity(w http.ResponseWriter, r *http.Request) {
	ref := snapshotRef(r)
	if cached := s.cache.Get(groupOpportunity, ref); cached != nil {
		writeGeoJSON(w, cached, "hit")
		return
	}

	snap, err := s.resolveSnapshot(r.Context(), ref)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			if ref == currentRef {
				writeGeoJSON(w, []byte(emptyFeatureFC), "miss")
				return
			}
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.serverError(w, "api: resolve snapshot", err)
		return
	}

	rows, err := s.store.ListSubzones(r.Context(), snap.ID, store.SubzoneFilter{})
	if err != nil {
		s.serverError(w, "api: list subzones", err)
		return
	}
	var buf bytes.Buffer
	if err := model.EncodeFeatureCollection(&buf, rows); err != nil {
		s.serverError(w, "api: encode opportunity", err)
		return
	}

	s.cache.Put(groupOpportunity, ref, buf.Bytes())
	writeGeoJSON(w, buf.Bytes(), "miss")
}

type subzonesResponse struct {
	Snapshot *model.Snapshot     `json:"snapshot"`
	Filter   store.SubzoneFilter `json:"filter"`
	Subzones []model.Properties  `json:"subzones"`
}

// handleSubzones serves GET /api/subzones?planning_area=&rank_top=&snapshot=.
func (s *Server) handleSubzones(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SubzoneFilter{PlanningArea: strings.TrimSpace(q.Get("planning_area"))}
	if v := q.Get("rank_top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "rank_top must be a non-negative integer")
			return
		}
		filter.RankTop = n
	}

	resp := subzonesResponse{Filter: filter, Subzones: []model.Properties{}}

	ref := snapshotRef(r)
	snap, err := s.resolveSnapshot(r.Context(), ref)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			if ref == currentRef {
				writeJSON(w, http.StatusOK, resp)
				return
			}
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.serverError(w, "api: resolve snapshot", err)
		return
	}
	resp.Snapshot = snap

	rows, err := s.store.ListSubzones(r.Context(), snap.ID, filter)
	if err != nil {
		s.serverError(w, "api: list subzones", err)
		return
	}
	for i := range rows {
		resp.Subzones = append(resp.Subzones, rows[i].Properties())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLayer serves GET /api/layers/{name}.geojson from the configured
// input layers.
func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	name, ok := strings.CutSuffix(file, geoJSONSuffix)
	fn := s.opts.Layers[name]
	if !ok || fn == nil {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}

	if cached := s.cache.Get(groupLayer, name); cached != nil {
		writeGeoJSON(w, cached, "hit")
		return
	}

	body, err := fn(r.Context())
	if err != nil {
		if eris.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, name+" layer not found")
			return
		}
		s.serverError(w, "api: load layer "+name, err)
		return
	}
	s.cache.Put(groupLayer, name, body)
	writeGeoJSON(w, body, "miss")
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
