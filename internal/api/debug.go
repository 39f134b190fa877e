package api

import (
	"bytes"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/stress.report/internal/httputil"
	"github.com/banshee-data/stress.report/internal/monitor"
)

// AttachDebugRoutes adds the snapshot plot and dataset charts to the /debug/
// index. Like the rest of /debug/ they are reachable only from localhost or
// over Tailscale.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("snapshot.png", "current acquisition window", func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.acq.Snapshot(r.Context())
		if err != nil {
			httputil.WriteJSONError(w, snapshotStatus(err), err.Error())
			return
		}
		var buf bytes.Buffer
		if err := monitor.SnapshotPNG(&buf, snap); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	})

	debug.HandleFunc("dataset", "labeled dataset scatter (?task=stress|energy|quadrant)", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("task")
		if name == "" {
			name = "stress"
		}
		svc, ok := s.models[name]
		if !ok {
			httputil.NotFound(w, fmt.Sprintf("unknown task %q", name))
			return
		}
		var buf bytes.Buffer
		if err := monitor.DatasetScatter(&buf, svc.Name(), svc.Rows()); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
}
