// Package admin serves the local operator API of a colony server. Every
// mutation runs on the colony goroutine through Colony.Do.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/colony"
	"colonycraft.ai/internal/sim/ids"
)

// AuditQuerier answers per-citizen audit history (the sqlite index does).
type AuditQuerier interface {
	CitizenAudits(ctx context.Context, colonyID string, id uuid.UUID, limit int) ([]colony.AuditEntry, error)
}

type Options struct {
	// AllowRemote disables the loopback-only guard.
	AllowRemote bool
	Audits      AuditQuerier
	Timeout     time.Duration
}

type Server struct {
	c    *colony.Colony
	opts Options
	log  *log.Logger
}

func New(c *colony.Colony, opts Options, logger *log.Logger) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Server{c: c, opts: opts, log: logger}
}

// CitizenJSON is the admin rendering of one record.
type CitizenJSON struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Female  bool           `json:"female"`
	Texture int            `json:"texture"`
	Level   int            `json:"level"`
	Skills  citizen.Skills `json:"skills"`
	Home    string         `json:"home,omitempty"`
	Work    string         `json:"work,omitempty"`
	Entity  int            `json:"entity"`
	Dirty   bool           `json:"dirty"`
}

type BuildingJSON struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Role        string   `json:"role"`
	Pos         string   `json:"pos"`
	DisplayName string   `json:"display_name"`
	JobName     string   `json:"job_name,omitempty"`
	Capacity    int      `json:"max_inhabitants"`
	Occupants   []string `json:"occupants"`
}

type posReq struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p posReq) pos() ids.BlockPos { return ids.BlockPos{X: p.X, Y: p.Y, Z: p.Z} }

// Register mounts the admin routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/v1/state", s.guard(s.handleState))
	mux.HandleFunc("POST /admin/v1/snapshot", s.guard(s.handleSnapshot))
	mux.HandleFunc("POST /admin/v1/persist", s.guard(s.handlePersist))

	mux.HandleFunc("GET /admin/v1/citizens", s.guard(s.handleListCitizens))
	mux.HandleFunc("POST /admin/v1/citizens", s.guard(s.handleSpawn))
	mux.HandleFunc("GET /admin/v1/citizens/{id}", s.guard(s.handleGetCitizen))
	mux.HandleFunc("DELETE /admin/v1/citizens/{id}", s.guard(s.handleRemoveCitizen))
	mux.HandleFunc("PUT /admin/v1/citizens/{id}/skills", s.guard(s.handleSetSkills))
	mux.HandleFunc("POST /admin/v1/citizens/{id}/entity", s.guard(s.handleLoadEntity))
	mux.HandleFunc("DELETE /admin/v1/citizens/{id}/entity", s.guard(s.handleUnloadEntity))
	mux.HandleFunc("PUT /admin/v1/citizens/{id}/{slot}", s.guard(s.handleAssign))
	mux.HandleFunc("DELETE /admin/v1/citizens/{id}/{slot}", s.guard(s.handleClear))
	mux.HandleFunc("GET /admin/v1/citizens/{id}/audits", s.guard(s.handleAudits))

	mux.HandleFunc("GET /admin/v1/buildings", s.guard(s.handleListBuildings))
	mux.HandleFunc("POST /admin/v1/buildings", s.guard(s.handleAddBuilding))
	mux.HandleFunc("DELETE /admin/v1/buildings/{pos}", s.guard(s.handleRemoveBuilding))
}

func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !IsLoopbackRemote(r.RemoteAddr) {
			writeErr(rw, http.StatusForbidden, protocol.ErrBadRequest, "forbidden")
			return
		}
		h(rw, r)
	}
}

func (s *Server) do(r *http.Request, fn func(*colony.Colony) error) error {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()
	return s.c.Do(ctx, fn)
}

func (s *Server) handleState(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"colony_id": s.c.ID(),
		"tick":      s.c.CurrentTick(),
		"metrics":   s.c.Metrics(),
	})
}

func (s *Server) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	var path string
	err := s.do(r, func(c *colony.Colony) error {
		var err error
		path, err = c.SaveSnapshot()
		return err
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func (s *Server) handlePersist(rw http.ResponseWriter, r *http.Request) {
	var n int
	err := s.do(r, func(c *colony.Colony) error {
		var err error
		n, err = c.Persist(r.Context())
		return err
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "persisted": n})
}

func (s *Server) handleListCitizens(rw http.ResponseWriter, r *http.Request) {
	var out []CitizenJSON
	err := s.do(r, func(c *colony.Colony) error {
		for _, cz := range c.Citizens() {
			out = append(out, citizenJSON(cz))
		}
		return nil
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	if out == nil {
		out = []CitizenJSON{}
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleSpawn(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		Seed *int64 `json:"seed"`
	}
	if !decodeBody(rw, r, &req) {
		return
	}
	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	var out CitizenJSON
	err := s.do(r, func(c *colony.Colony) error {
		cz, err := c.SpawnCitizen(seed)
		if err != nil {
			return err
		}
		out = citizenJSON(cz)
		return nil
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, out)
}

func (s *Server) handleGetCitizen(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	var out CitizenJSON
	err := s.do(r, func(c *colony.Colony) error {
		cz, ok := c.Citizen(id)
		if !ok {
			return colony.ErrCitizenNotFound
		}
		out = citizenJSON(cz)
		return nil
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleRemoveCitizen(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.do(r, func(c *colony.Colony) error { return c.RemoveCitizen(ctx, id) }); err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetSkills(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	var sk citizen.Skills
	if !decodeBody(rw, r, &sk) {
		return
	}
	err := s.do(r, func(c *colony.Colony) error {
		cz, ok := c.Citizen(id)
		if !ok {
			return colony.ErrCitizenNotFound
		}
		cz.SetSkills(sk)
		return nil
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLoadEntity(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	var req struct {
		Seed int64 `json:"seed"`
	}
	if !decodeBody(rw, r, &req) {
		return
	}
	if err := s.do(r, func(c *colony.Colony) error { return c.LoadEntity(id, req.Seed) }); err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUnloadEntity(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	if err := s.do(r, func(c *colony.Colony) error { return c.UnloadEntity(id) }); err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAssign(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	slot := r.PathValue("slot")
	if slot != "home" && slot != "work" {
		writeErr(rw, http.StatusNotFound, protocol.ErrNotFound, "unknown slot "+slot)
		return
	}
	var p posReq
	if !decodeBody(rw, r, &p) {
		return
	}
	err := s.do(r, func(c *colony.Colony) error {
		if slot == "home" {
			return c.AssignHome(id, p.pos())
		}
		return c.AssignWork(id, p.pos())
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleClear(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	slot := r.PathValue("slot")
	if slot != "home" && slot != "work" {
		writeErr(rw, http.StatusNotFound, protocol.ErrNotFound, "unknown slot "+slot)
		return
	}
	err := s.do(r, func(c *colony.Colony) error {
		if slot == "home" {
			return c.ClearHome(id)
		}
		return c.ClearWork(id)
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAudits(rw http.ResponseWriter, r *http.Request) {
	id, ok := pathID(rw, r)
	if !ok {
		return
	}
	if s.opts.Audits == nil {
		writeErr(rw, http.StatusNotImplemented, protocol.ErrBadRequest, "audit index disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.opts.Audits.CitizenAudits(r.Context(), s.c.ID(), id, limit)
	if err != nil {
		s.fail(rw, err)
		return
	}
	if entries == nil {
		entries = []colony.AuditEntry{}
	}
	writeJSON(rw, http.StatusOK, entries)
}

func (s *Server) handleListBuildings(rw http.ResponseWriter, r *http.Request) {
	var out []BuildingJSON
	err := s.do(r, func(c *colony.Colony) error {
		for _, b := range c.Buildings().List() {
			out = append(out, buildingJSON(b))
		}
		return nil
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	if out == nil {
		out = []BuildingJSON{}
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleAddBuilding(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		posReq
	}
	if !decodeBody(rw, r, &req) {
		return
	}
	var out BuildingJSON
	err := s.do(r, func(c *colony.Colony) error {
		b, err := c.AddBuilding(req.Kind, req.pos())
		if err != nil {
			return err
		}
		out = buildingJSON(b)
		return nil
	})
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, out)
}

func (s *Server) handleRemoveBuilding(rw http.ResponseWriter, r *http.Request) {
	pos, ok := ids.ParsePosKey(r.PathValue("pos"))
	if !ok {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad position key")
		return
	}
	if err := s.do(r, func(c *colony.Colony) error { return c.RemoveBuilding(pos) }); err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) fail(rw http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeErr(rw, http.StatusServiceUnavailable, protocol.ErrColonyBusy, err.Error())
		return
	}
	code := colony.ErrorCode(err)
	status := StatusFor(code)
	if status >= 500 && s.log != nil {
		s.log.Printf("admin: %v", err)
	}
	writeErr(rw, status, code, err.Error())
}

// StatusFor maps a protocol error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case protocol.ErrNotFound, protocol.ErrColonyNotFound:
		return http.StatusNotFound
	case protocol.ErrConflict:
		return http.StatusConflict
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	case protocol.ErrInvalidTarget, protocol.ErrMismatchedIdentity, protocol.ErrMalformedRecord:
		return http.StatusUnprocessableEntity
	case protocol.ErrColonyBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func citizenJSON(cz *citizen.Citizen) CitizenJSON {
	out := CitizenJSON{
		ID:      cz.ID().String(),
		Name:    cz.Name(),
		Female:  cz.IsFemale(),
		Texture: cz.TextureID(),
		Level:   cz.Level(),
		Skills:  cz.Skills(),
		Entity:  -1,
		Dirty:   cz.IsDirty(),
	}
	if p, ok := cz.HomePos(); ok {
		out.Home = ids.PosKey(p)
	}
	if p, ok := cz.WorkPos(); ok {
		out.Work = ids.PosKey(p)
	}
	if e, ok := cz.Entity(); ok {
		out.Entity = e.RuntimeID()
	}
	return out
}

func buildingJSON(b *colony.Building) BuildingJSON {
	def := b.Def()
	out := BuildingJSON{
		ID:          b.ID(),
		Kind:        b.Kind(),
		Role:        string(b.Role()),
		Pos:         ids.PosKey(b.Pos()),
		DisplayName: def.DisplayName,
		JobName:     def.JobName,
		Capacity:    def.MaxInhabitants,
		Occupants:   []string{},
	}
	for _, id := range b.Occupants() {
		out.Occupants = append(out.Occupants, id.String())
	}
	return out
}

func pathID(rw http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad citizen id")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody reads a JSON body; an empty body leaves v untouched.
func decodeBody(rw http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, map[string]any{"ok": false, "code": code, "error": msg})
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
