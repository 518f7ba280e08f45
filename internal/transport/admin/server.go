// Package admin serves the local-only operator API: state, density
// diagnostics, corruption injection, node management, rule reloads and
// snapshots.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/node"
)

// Runtime is the slice of the aether runtime the API drives.
type Runtime interface {
	ID() string
	CurrentTick() uint64
	ReportDensity(pos geom.Vec3i) (aether.DensityReport, int)
	ListDensities() ([]aether.RegionDensity, int)
	InjectCorruption(pos geom.Vec3i, amount float64) int
	Nodes() []aether.NodeInfo
	SpawnNode(typ node.Type, pos geom.Vec3i) (aether.NodeInfo, error)
	RemoveNode(id string) bool
}

type Hooks struct {
	// Reload re-reads the catalogs and returns the published rule version.
	Reload func() (uint64, error)
	// Snapshot writes a snapshot and returns its path and tick.
	Snapshot func(ctx context.Context) (string, uint64, error)
	// Sessions reports connected clients.
	Sessions func() int64
}

type Server struct {
	rt    Runtime
	hooks Hooks
	log   *zap.Logger
}

func NewServer(rt Runtime, hooks Hooks, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{rt: rt, hooks: hooks, log: log.Named("admin")}
}

// Register mounts every endpoint under /admin/v1/.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", s.local(http.MethodGet, s.handleState))
	mux.HandleFunc("/admin/v1/density", s.local(http.MethodGet, s.handleDensity))
	mux.HandleFunc("/admin/v1/densities", s.local(http.MethodGet, s.handleDensities))
	mux.HandleFunc("/admin/v1/corruption", s.local(http.MethodPost, s.handleInject))
	mux.HandleFunc("/admin/v1/nodes", s.handleNodes)
	mux.HandleFunc("/admin/v1/reload", s.local(http.MethodPost, s.handleReload))
	mux.HandleFunc("/admin/v1/snapshot", s.local(http.MethodPost, s.handleSnapshot))
}

func (s *Server) local(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

type stateResponse struct {
	WorldID    string `json:"world_id"`
	Tick       uint64 `json:"tick"`
	NodesAlive int    `json:"nodes_alive"`
	Sessions   int64  `json:"sessions"`
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		WorldID:    s.rt.ID(),
		Tick:       s.rt.CurrentTick(),
		NodesAlive: len(s.rt.Nodes()),
	}
	if s.hooks.Sessions != nil {
		resp.Sessions = s.hooks.Sessions()
	}
	writeJSON(rw, http.StatusOK, resp)
}

type densityResponse struct {
	Status     int                `json:"status"`
	Pos        [3]int             `json:"pos"`
	Region     string             `json:"region,omitempty"`
	Structures []string           `json:"structures,omitempty"`
	DeadZone   bool               `json:"dead_zone,omitempty"`
	HasBase    bool               `json:"has_base"`
	Base       map[string]float64 `json:"base,omitempty"`
	Deltas     map[string]float64 `json:"deltas,omitempty"`
	Final      map[string]float64 `json:"final,omitempty"`
	Corruption float64            `json:"corruption"`
	OtherTotal float64            `json:"other_total"`
	Corrupted  bool               `json:"corrupted"`
	Loaded     int                `json:"loaded_regions"`
}

func (s *Server) handleDensity(rw http.ResponseWriter, r *http.Request) {
	pos, err := parsePos(r)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	rep, status := s.rt.ReportDensity(pos)
	resp := densityResponse{
		Status:     status,
		Pos:        pos.ToArray(),
		DeadZone:   rep.DeadZone,
		HasBase:    rep.HasBase,
		Corruption: rep.Corruption,
		OtherTotal: rep.OtherTotal,
		Corrupted:  rep.Corrupted,
		Loaded:     rep.LoadedRegions,
	}
	if status == aether.StatusSuccess {
		resp.Region = rep.Region.String()
		for _, st := range rep.Structures {
			resp.Structures = append(resp.Structures, st.String())
		}
		resp.Base = rep.Base.StringKeys()
		resp.Deltas = rep.Deltas.StringKeys()
		resp.Final = rep.Final.StringKeys()
	}
	writeJSON(rw, http.StatusOK, resp)
}

type regionDensityJSON struct {
	Region  string             `json:"region"`
	Density map[string]float64 `json:"density"`
}

func (s *Server) handleDensities(rw http.ResponseWriter, r *http.Request) {
	list, status := s.rt.ListDensities()
	out := make([]regionDensityJSON, 0, len(list))
	for _, d := range list {
		out = append(out, regionDensityJSON{Region: d.Region.String(), Density: d.Density.StringKeys()})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"status": status, "regions": out})
}

func (s *Server) handleInject(rw http.ResponseWriter, r *http.Request) {
	pos, err := parsePos(r)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	amount := aether.DefaultInjectAmount
	if v := r.URL.Query().Get("amount"); v != "" {
		if amount, err = strconv.ParseFloat(v, 64); err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
			http.Error(rw, "bad amount", http.StatusBadRequest)
			return
		}
	}
	status := s.rt.InjectCorruption(pos, amount)
	arr := pos.ToArray()
	s.log.Info("inject corruption", zap.Ints("pos", arr[:]), zap.Float64("amount", amount), zap.Int("status", status))
	writeJSON(rw, http.StatusOK, map[string]any{"status": status, "amount": amount})
}

type nodeJSON struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Pos         [3]int            `json:"pos"`
	Aspects     map[string][2]int `json:"aspects"`
	Instability int               `json:"instability,omitempty"`
	Hunger      int               `json:"hunger,omitempty"`
	Age         int64             `json:"age"`
	Aggressive  bool              `json:"aggressive,omitempty"`
}

func toNodeJSON(info aether.NodeInfo) nodeJSON {
	n := nodeJSON{
		ID:          info.ID,
		Type:        info.State.Type.String(),
		Pos:         info.Pos.ToArray(),
		Aspects:     make(map[string][2]int, len(info.State.Aspects)),
		Instability: info.State.Instability,
		Hunger:      info.State.Hunger,
		Age:         info.State.Age,
		Aggressive:  info.State.Aggressive,
	}
	for _, a := range info.State.Aspects {
		n.Aspects[a.ID.String()] = [2]int{a.Current, a.Original}
	}
	return n
}

func (s *Server) handleNodes(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodGet:
		infos := s.rt.Nodes()
		out := make([]nodeJSON, 0, len(infos))
		for _, info := range infos {
			out = append(out, toNodeJSON(info))
		}
		writeJSON(rw, http.StatusOK, out)
	case http.MethodPost:
		pos, err := parsePos(r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		typ, err := node.ParseType(r.URL.Query().Get("type"))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		info, err := s.rt.SpawnNode(typ, pos)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusCreated, toNodeJSON(info))
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" || !s.rt.RemoveNode(id) {
			http.Error(rw, "no such node", http.StatusNotFound)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReload(rw http.ResponseWriter, r *http.Request) {
	if s.hooks.Reload == nil {
		http.Error(rw, "reload unavailable", http.StatusNotImplemented)
		return
	}
	version, err := s.hooks.Reload()
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "version": version})
}

func (s *Server) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if s.hooks.Snapshot == nil {
		http.Error(rw, "snapshots unavailable", http.StatusNotImplemented)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	path, tick, err := s.hooks.Snapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick, "path": path})
}

func parsePos(r *http.Request) (geom.Vec3i, error) {
	q := r.URL.Query()
	var out [3]int
	for i, k := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(strings.TrimSpace(q.Get(k)))
		if err != nil {
			return geom.Vec3i{}, fmt.Errorf("bad %s", k)
		}
		out[i] = v
	}
	return geom.FromArray(out), nil
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
