// Package api serves read only views of the beacon state over HTTP
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/governance"
	"github.com/eigerco/beacon/internal/groups"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/ledger"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Source is the ledger as seen by the HTTP server
type Source interface {
	Status() ledger.Status
	State() statetransition.State
	Height() height.Height
}

type Server struct {
	addr     string
	source   Source
	gatherer prometheus.Gatherer
	now      func() time.Time
	router   *mux.Router
}

// NewServer builds the router. A nil gatherer serves the default
// prometheus registry.
func NewServer(addr string, source Source, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{addr: addr, source: source, gatherer: gatherer, now: time.Now}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/groups", s.handleGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{index}", s.handleGroup).Methods(http.MethodGet)
	r.HandleFunc("/selection", s.handleSelection).Methods(http.MethodGet)
	r.HandleFunc("/governance/{name}", s.handleParameter).Methods(http.MethodGet)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.API.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Seq                 uint64 `json:"seq"`
	Height              uint64 `json:"height"`
	Groups              uint64 `json:"groups"`
	ActiveGroups        uint64 `json:"activeGroups"`
	SelectionInProgress bool   `json:"selectionInProgress"`
	DKGInProgress       bool   `json:"dkgInProgress"`
	RequestInProgress   bool   `json:"requestInProgress"`
	EntryCount          uint64 `json:"entryCount"`
	LastEntry           string `json:"lastEntry"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.source.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Seq:                 st.Seq,
		Height:              uint64(st.Height),
		Groups:              st.Groups,
		ActiveGroups:        st.ActiveGroups,
		SelectionInProgress: st.SelectionInProgress,
		DKGInProgress:       st.DKGInProgress,
		RequestInProgress:   st.RequestInProgress,
		EntryCount:          st.EntryCount,
		LastEntry:           hexBytes(st.LastEntry),
	})
}

type groupResponse struct {
	Index        uint64           `json:"index"`
	PublicKey    string           `json:"publicKey"`
	Members      []common.Address `json:"members"`
	RegisteredAt uint64           `json:"registeredAt"`
	ActiveUntil  uint64           `json:"activeUntil"`
	Active       bool             `json:"active"`
	Terminated   bool             `json:"terminated"`
	MemberReward string           `json:"memberReward"`
}

func newGroupResponse(g *groups.Group, params config.Params, h height.Height) groupResponse {
	return groupResponse{
		Index:        g.Index,
		PublicKey:    hexBytes(g.PublicKey),
		Members:      g.Members,
		RegisteredAt: uint64(g.RegisteredAt),
		ActiveUntil:  uint64(g.ActiveUntil(params)),
		Active:       !g.Terminated && g.ActiveUntil(params) >= h,
		Terminated:   g.Terminated,
		MemberReward: g.MemberReward.Dec(),
	}
}

func (s *Server) handleGroups(w http.ResponseWriter, _ *http.Request) {
	state := s.source.State()
	h := s.source.Height()
	resp := make([]groupResponse, 0, len(state.Groups.Groups))
	for i := range state.Groups.Groups {
		resp = append(resp, newGroupResponse(&state.Groups.Groups[i], state.Params, h))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group index")
		return
	}
	state := s.source.State()
	g, err := state.Groups.Get(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newGroupResponse(g, state.Params, s.source.Height()))
}

type ticketResponse struct {
	Value        string         `json:"value"`
	Operator     common.Address `json:"operator"`
	VirtualIndex uint64         `json:"virtualIndex"`
}

type selectionResponse struct {
	InProgress    bool             `json:"inProgress"`
	Seed          string           `json:"seed"`
	Start         uint64           `json:"start"`
	SubmissionEnd uint64           `json:"submissionEnd"`
	Tickets       []ticketResponse `json:"tickets"`
}

func (s *Server) handleSelection(w http.ResponseWriter, _ *http.Request) {
	state := s.source.State()
	sel := state.Selection
	resp := selectionResponse{
		InProgress: sel.InProgress,
		Seed:       sel.Seed.Hex(),
		Start:      uint64(sel.Start),
		Tickets:    make([]ticketResponse, 0, len(sel.Tickets)),
	}
	if sel.InProgress {
		resp.SubmissionEnd = uint64(sel.SubmissionWindow(state.Params).End())
	}
	for _, t := range sel.Tickets {
		resp.Tickets = append(resp.Tickets, ticketResponse{
			Value:        t.Value.Hex(),
			Operator:     t.Operator,
			VirtualIndex: t.VirtualIndex,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type parameterResponse struct {
	Name             string  `json:"name"`
	Value            string  `json:"value"`
	Delay            string  `json:"delay"`
	PendingValue     *string `json:"pendingValue,omitempty"`
	RequestedAt      *int64  `json:"requestedAt,omitempty"`
	RemainingSeconds *int64  `json:"remainingSeconds,omitempty"`
}

func (s *Server) handleParameter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	state := s.source.State()
	value, err := state.Params.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := parameterResponse{Name: name, Value: value.Dec(), Delay: governance.Delay(name).String()}
	if pending, ok := state.Governance.Pending[name]; ok {
		remaining, err := state.Governance.RemainingUpdateTime(name, s.now().Unix())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		v := pending.Value.Dec()
		secs := int64(remaining / time.Second)
		resp.PendingValue = &v
		resp.RequestedAt = &pending.RequestedAt
		resp.RemainingSeconds = &secs
	}
	writeJSON(w, http.StatusOK, resp)
}

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.API.Debug().Err(err).Msg("write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, req)
		log.API.Debug().
			Str("method", req.Method).
			Str("uri", req.RequestURI).
			Int("code", rec.code).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
