package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/dataset"
	"github.com/banshee-data/stress.report/internal/export"
	"github.com/banshee-data/stress.report/internal/features"
	"github.com/banshee-data/stress.report/internal/httputil"
	"github.com/banshee-data/stress.report/internal/model"
	"github.com/banshee-data/stress.report/internal/sensor"
)

const maxBodySize = 64 * 1024

type taskHandler func(w http.ResponseWriter, r *http.Request, svc model.Service)

func (s *Server) withTask(h taskHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("task")
		svc, ok := s.models[name]
		if !ok {
			httputil.NotFound(w, fmt.Sprintf("unknown task %q", name))
			return
		}
		h(w, r, svc)
	}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	return json.Unmarshal(body, v)
}

// snapshotStatus maps snapshot and feature failures to 409; anything else is
// a server error.
func snapshotStatus(err error) int {
	switch {
	case errors.Is(err, acquisition.ErrInsufficientSamples),
		errors.Is(err, features.ErrNotEnoughSamples),
		errors.Is(err, model.ErrNoisySnapshot):
		return http.StatusConflict
	case errors.Is(err, acquisition.ErrLoopStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.acq.Snapshot(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) showLastSamples(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("channel")
	if name == "" {
		last, err := s.acq.LastSamples(r.Context())
		if err != nil {
			httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
			return
		}
		httputil.WriteJSONOK(w, last)
		return
	}
	ch, err := sensor.ParseChannel(name)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sample, ok, err := s.acq.LastSample(r.Context(), ch)
	if err != nil {
		httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
		return
	}
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no %s samples yet", ch))
		return
	}
	httputil.WriteJSONOK(w, sample)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	out := make([]model.Status, 0, len(s.models))
	for _, name := range s.taskNames() {
		out = append(out, s.models[name].Status())
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showModel(w http.ResponseWriter, r *http.Request, svc model.Service) {
	httputil.WriteJSONOK(w, svc.Status())
}

func (s *Server) clearModel(w http.ResponseWriter, r *http.Request, svc model.Service) {
	if err := svc.Clear(r.Context()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, svc.Status())
}

type addSampleRequest struct {
	Label   json.RawMessage `json:"label"`
	Details json.RawMessage `json:"details,omitempty"`
}

type addSampleResponse struct {
	Sample     features.ModelSample `json:"sample"`
	Label      any                  `json:"label"`
	SnapshotID string               `json:"snapshot_id"`
	Status     model.Status         `json:"status"`
}

func (s *Server) addSample(w http.ResponseWriter, r *http.Request, svc model.Service) {
	var req addSampleRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Label) == 0 {
		httputil.BadRequest(w, "missing label")
		return
	}
	if d := svc.CooldownRemaining(); d > 0 {
		httputil.TooManyRequests(w, fmt.Sprintf("%v: retry in %.0fs", model.ErrCooldown, d.Seconds()), d)
		return
	}

	snap, err := s.acq.Snapshot(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
		return
	}
	sample, label, err := svc.AddSampleJSON(snap, req.Label)
	var cooldown *model.CooldownError
	switch {
	case errors.As(err, &cooldown):
		httputil.TooManyRequests(w, cooldown.Error(), cooldown.Remaining)
		return
	case errors.Is(err, model.ErrInvalidLabel):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
		return
	}

	if err := s.logger.LogLabeled(svc.Name(), snap, sample, label, req.Details); err != nil {
		logf("log %s sample: %v", svc.Name(), err)
	}
	httputil.WriteJSON(w, http.StatusCreated, addSampleResponse{
		Sample:     sample,
		Label:      label,
		SnapshotID: snap.ID,
		Status:     svc.Status(),
	})
}

type trainUnavailableResponse struct {
	Error  string                          `json:"error"`
	Detail *model.TrainingUnavailableError `json:"detail"`
}

func (s *Server) trainModel(w http.ResponseWriter, r *http.Request, svc model.Service) {
	err := svc.Train(r.Context())
	var unavailable *model.TrainingUnavailableError
	switch {
	case err == nil:
		httputil.WriteJSONOK(w, svc.Status())
	case errors.As(err, &unavailable):
		httputil.WriteJSON(w, http.StatusConflict, trainUnavailableResponse{Error: err.Error(), Detail: unavailable})
	case errors.Is(err, model.ErrTrainingInProgress),
		errors.Is(err, model.ErrTrainingDiscarded),
		errors.Is(err, dataset.ErrEmptyClass):
		httputil.Conflict(w, err.Error())
	case r.Context().Err() != nil:
		// client went away; training continues in the background
		logf("%s training wait abandoned: %v", svc.Name(), err)
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

type predictResponse struct {
	Task       string `json:"task"`
	Label      any    `json:"label"`
	SnapshotID string `json:"snapshot_id"`
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request, svc model.Service) {
	snap, err := s.acq.Snapshot(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
		return
	}
	label, err := svc.PredictAny(snap)
	switch {
	case errors.Is(err, model.ErrPredictUnavailable):
		httputil.Conflict(w, err.Error())
		return
	case err != nil:
		httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
		return
	}
	if err := s.logger.LogPrediction(svc.Name(), label, snap); err != nil {
		logf("log %s prediction: %v", svc.Name(), err)
	}
	httputil.WriteJSONOK(w, predictResponse{Task: svc.Name(), Label: label, SnapshotID: snap.ID})
}

func (s *Server) exportParquet(w http.ResponseWriter, r *http.Request, svc model.Service) {
	data, err := export.DatasetParquet(svc.Rows())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("export failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", svc.Name()+".parquet"))
	w.Write(data)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type toggleResponse struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) showNoise(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, toggleResponse{Enabled: s.acq.NoiseActive()})
}

func (s *Server) setNoise(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil || req.Enabled == nil {
		httputil.BadRequest(w, `expected {"enabled": bool}`)
		return
	}
	if *req.Enabled {
		s.acq.StartNoise(s.base)
	} else {
		s.acq.StopNoise()
	}
	httputil.WriteJSONOK(w, toggleResponse{Enabled: s.acq.NoiseActive()})
}

func (s *Server) showAutolog(w http.ResponseWriter, r *http.Request) {
	if s.autolog == nil {
		httputil.NotFound(w, "automatic logging not configured")
		return
	}
	httputil.WriteJSONOK(w, toggleResponse{Enabled: s.autolog.Active()})
}

func (s *Server) setAutolog(w http.ResponseWriter, r *http.Request) {
	if s.autolog == nil {
		httputil.NotFound(w, "automatic logging not configured")
		return
	}
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil || req.Enabled == nil {
		httputil.BadRequest(w, `expected {"enabled": bool}`)
		return
	}
	if *req.Enabled {
		s.autolog.Activate()
	} else {
		s.autolog.Deactivate()
	}
	httputil.WriteJSONOK(w, toggleResponse{Enabled: s.autolog.Active()})
}

func (s *Server) showMirror(w http.ResponseWriter, r *http.Request) {
	if s.mirror == nil {
		httputil.NotFound(w, "remote mirroring not configured")
		return
	}
	httputil.WriteJSONOK(w, s.mirror.Stats())
}
