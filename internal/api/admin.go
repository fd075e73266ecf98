package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/store"
)

type ingestRequest struct {
	Note      string          `json:"note"`
	CreatedBy string          `json:"created_by"`
	GeoJSON   json.RawMessage `json:"geojson"`
}

type ingestResponse struct {
	SnapshotID string          `json:"snapshot_id"`
	Inserted   int             `json:"inserted"`
	Snapshot   *model.Snapshot `json:"snapshot"`
}

// handleIngest stores an uploaded FeatureCollection as a new current
// snapshot.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	raw := bytes.TrimSpace(req.GeoJSON)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		writeError(w, http.StatusBadRequest, "provide geojson in body.geojson")
		return
	}

	subzones, err := model.DecodeFeatureCollection(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.store.CreateSnapshot(r.Context(), subzones, store.CreateOptions{
		Note:        req.Note,
		CreatedBy:   req.CreatedBy,
		MakeCurrent: true,
		Meta:        map[string]any{"source": "api", "features": len(subzones)},
	})
	if err != nil {
		s.serverError(w, "api: create snapshot", err)
		return
	}
	s.cache.Invalidate(groupOpportunity)

	s.log.Info("api: snapshot ingested",
		zap.String("snapshot", snap.ID),
		zap.Int("features", len(subzones)),
		zap.Int("inserted", snap.Subzones),
	)
	writeJSON(w, http.StatusCreated, ingestResponse{SnapshotID: snap.ID, Inserted: snap.Subzones, Snapshot: snap})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.ListSnapshots(r.Context())
	if err != nil {
		s.serverError(w, "api: list snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

// handleRestore makes an earlier snapshot current.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetCurrent(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.serverError(w, "api: restore snapshot", err)
		return
	}
	s.cache.Invalidate(groupOpportunity)

	s.log.Info("api: snapshot restored", zap.String("snapshot", id))
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": id})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}
