// Package monitor exposes a read-only HTTP view of a running simulation.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/seikosantana/modbus-sim/internal/engine"
	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// DefaultCount is the number of registers /api/registers returns when no
// count is given. MaxCount matches the Modbus FC03 limit.
const (
	DefaultCount = 16
	MaxCount     = 125
)

// Scheduler is the part of engine.Scheduler the monitor reads.
type Scheduler interface {
	State() engine.State
	Stats() engine.Stats
	Rules() rules.RuleSet
}

// CounterSource reports transport request counters.
type CounterSource interface {
	Counters() map[string]uint64
}

// Monitor serves the monitoring API.
type Monitor struct {
	scheduler  Scheduler
	bank       *registers.Bank
	counters   CounterSource
	portNumber int
	logger     *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewMonitor creates a monitor over a scheduler and the bank it mutates.
func NewMonitor(s Scheduler, bank *registers.Bank) *Monitor {
	return &Monitor{
		scheduler: s,
		bank:      bank,
		logger:    slog.Default(),
	}
}

// WithPortNumber sets the port number of the monitor. 0 picks a random
// port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	m.portNumber = portNumber
	return m
}

// WithCounters adds transport counters to /api/stats.
func (m *Monitor) WithCounters(c CounterSource) *Monitor {
	m.counters = c
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(l *slog.Logger) *Monitor {
	m.logger = l
	return m
}

// Router returns the API routes.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Methods(http.MethodGet).Subrouter()
	api.HandleFunc("/state", m.state)
	api.HandleFunc("/stats", m.stats)
	api.HandleFunc("/rules", m.listRules)
	api.HandleFunc("/registers", m.listRegisters)
	api.HandleFunc("/registers/{index:[0-9]+}", m.register)
	api.HandleFunc("/resource", m.listResources)
	return r
}

// StartServer listens on the configured port and serves in the
// background. It returns the bound address.
func (m *Monitor) StartServer() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return "", errors.New("monitor already started")
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitor listen: %w", err)
	}

	srv := &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.server = srv

	addr := listener.Addr().String()
	m.logger.Info("monitoring simulation", "url", "http://"+addr)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitor server failed", "error", err)
		}
	}()

	return addr, nil
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type stateRsp struct {
	State engine.State `json:"state"`
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateRsp{State: m.scheduler.State()})
}

type statsRsp struct {
	engine.Stats
	Requests map[string]uint64 `json:"requests,omitempty"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	rsp := statsRsp{Stats: m.scheduler.Stats()}
	if m.counters != nil {
		rsp.Requests = m.counters.Counters()
	}
	writeJSON(w, http.StatusOK, rsp)
}

type ruleRsp struct {
	Position    int        `json:"position"`
	Description string     `json:"description"`
	Rule        rules.Rule `json:"rule"`
}

func (m *Monitor) listRules(w http.ResponseWriter, _ *http.Request) {
	rs := m.scheduler.Rules()
	out := make([]ruleRsp, 0, len(rs))
	for i, r := range rs {
		out = append(out, ruleRsp{Position: i + 1, Description: r.String(), Rule: r})
	}
	writeJSON(w, http.StatusOK, out)
}

type registersRsp struct {
	Start  int     `json:"start"`
	Values []int16 `json:"values"`
}

func (m *Monitor) listRegisters(w http.ResponseWriter, r *http.Request) {
	start, err := intParam(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	count, err := intParam(r, "count", DefaultCount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if count < 1 || count > MaxCount {
		writeError(w, http.StatusBadRequest, fmt.Errorf("count must be between 1 and %d", MaxCount))
		return
	}

	raw, err := m.bank.ReadRange(start, count)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	values := make([]int16, len(raw))
	for i, v := range raw {
		values[i] = int16(v)
	}
	writeJSON(w, http.StatusOK, registersRsp{Start: start, Values: values})
}

type registerRsp struct {
	Register int   `json:"register"`
	Value    int16 `json:"value"`
}

func (m *Monitor) register(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v, err := m.bank.Read(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, registerRsp{Register: index, Value: v})
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
	NumThreads int32   `json:"num_threads"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	threads, err := proc.NumThreads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
		NumThreads: threads,
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

type errorRsp struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorRsp{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
