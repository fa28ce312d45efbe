// Package httpapi implements the HTTP front-end of spec.md §6: the
// eight routes translating header-driven PUT/POST/GET/DELETE semantics
// onto internal/engine calls. Routing is a plain stdlib
// http.ServeMux with manual path-suffix parsing for the `/block/{id}`
// family, the same style perkeep's camlistored wires its handlers with
// rather than pulling in a router framework.
package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/common/expfmt"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/engine"
	"github.com/Elzor/vstorage/internal/metrics"
	"github.com/Elzor/vstorage/internal/storeerr"
)

const banner = "The little block engine that could!"

// Server wires an engine.Engine to the HTTP routes.
type Server struct {
	eng     *engine.Engine
	metrics *metrics.Registry
	mux     *http.ServeMux
}

// New builds a Server. metrics may be nil.
func New(eng *engine.Engine, reg *metrics.Registry) *Server {
	s := &Server{eng: eng, metrics: reg, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/block", s.handleBlockCollection)
	s.mux.HandleFunc("/block/", s.handleBlockItem)
	return s
}

// ServeHTTP implements http.Handler, wrapping every route with a
// status-observing recorder so http_requests_total always reflects the
// outcome actually written to the client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	if s.metrics != nil {
		s.metrics.ObserveRequest(routeLabel(r.URL.Path), r.Method, rec.status)
	}
}

func routeLabel(path string) string {
	if strings.HasPrefix(path, "/block/") {
		return "/block/{id}"
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte(banner))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.eng.Stats()
	if s.metrics != nil {
		s.metrics.SetStorage(metrics.StorageSnapshot{
			Objects:    stats.Objects,
			AvailBytes: stats.AvailBytes,
			GCBytes:    stats.GCBytes,
			MoveBytes:  stats.MoveBytes,
			InitBytes:  stats.InitBytes,
		})
	}
	writeJSON(w, http.StatusOK, statusPayload{
		Node:    nodeStatus{Status: stats.Status},
		Storage: stats,
	})
}

type nodeStatus struct {
	Status string `json:"status"`
}

type statusPayload struct {
	Node    nodeStatus    `json:"node"`
	Storage engine.Stats  `json:"storage"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	mfs, err := s.metrics.Gatherer.Gather()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return
		}
	}
}

// handleBlockCollection handles `PUT /block` (spec §6: insert with a
// server-generated id).
func (s *Server) handleBlockCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	opts, err := optionsFromHeaders(r.Header)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, _, err := s.eng.Insert("", "", payload, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, id)
}

// handleBlockItem handles the `/block/{id}` family: PUT (insert),
// POST (upsert), GET (retrieve), DELETE.
func (s *Server) handleBlockItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/block/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		s.insertBlock(w, r, id)
	case http.MethodPost:
		s.upsertBlock(w, r, id)
	case http.MethodGet:
		s.getBlock(w, r, id)
	case http.MethodDelete:
		s.deleteBlock(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) insertBlock(w http.ResponseWriter, r *http.Request, id string) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	opts, err := optionsFromHeaders(r.Header)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if _, _, err := s.eng.Insert(id, "", payload, opts); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) upsertBlock(w http.ResponseWriter, r *http.Request, id string) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	opts, err := optionsFromHeaders(r.Header)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if _, err := s.eng.Upsert(id, "", payload, opts); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request, id string) {
	var crc codec.Digest
	var hasCRC bool
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if b, err := hex.DecodeString(inm); err == nil && len(b) == len(crc) {
			copy(crc[:], b)
			hasCRC = true
		}
	}
	allowCompressed := strings.Contains(r.Header.Get("Accept-Encoding"), "lz4")

	res, err := s.eng.Get(id, crc, hasCRC, allowCompressed)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("etag", hex.EncodeToString(res.Meta.Hash[:]))
	if res.Meta.ContentType != "" {
		w.Header().Set("content-type", res.Meta.ContentType)
	}
	if res.ContentEncoded {
		w.Header().Set("content-encoding", "lz4")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(res.Payload)
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.eng.Delete(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// optionsFromHeaders parses the v-hash-fun/v-hash/v-compress/content-type
// headers into engine.WriteOptions (spec §6). Per DESIGN.md's resolution
// of Open Question 4, a missing v-hash means "don't verify", not
// "fail"; the engine still computes the stored hash unconditionally.
func optionsFromHeaders(h http.Header) (engine.WriteOptions, error) {
	opts := engine.WriteOptions{ContentType: h.Get("content-type")}

	if fn := h.Get("v-hash-fun"); fn != "" {
		n, err := strconv.Atoi(fn)
		if err != nil {
			return opts, storeerr.Newf(storeerr.KindUnsupportedHash, "bad v-hash-fun header %q", fn)
		}
		opts.HashFunc = codec.HashFunction(n)
	}
	if hv := h.Get("v-hash"); hv != "" {
		b, err := hex.DecodeString(hv)
		if err != nil || len(b) != len(opts.Hash) {
			return opts, storeerr.Newf(storeerr.KindHashMismatch, "bad v-hash header %q", hv)
		}
		copy(opts.Hash[:], b)
		opts.HasHash = true
	}
	comp, err := codec.ParseCompression(h.Get("v-compress"))
	if err != nil {
		return opts, err
	}
	opts.Compress = comp
	return opts, nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	kind, _ := storeerr.KindOf(err)
	status := statusFor(kind)
	w.WriteHeader(status)
}

func statusFor(kind storeerr.Kind) int {
	switch kind {
	case storeerr.KindNotFound:
		return http.StatusNotFound
	case storeerr.KindExists:
		return http.StatusFound
	case storeerr.KindHashMismatch, storeerr.KindUnsupportedHash, storeerr.KindUnsupportedCompression:
		return http.StatusBadRequest
	case storeerr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case storeerr.KindNoSpace:
		return http.StatusInsufficientStorage
	case storeerr.KindCorruption, storeerr.KindIOError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
