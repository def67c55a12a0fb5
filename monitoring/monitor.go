// Package monitoring serves the state of a running scheduler over HTTP and
// lets the user pause and continue it.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/chronos/monitoring/web"
	"github.com/sarchlab/chronos/sim"
)

// Monitor can turn a run into a server and allows external monitoring and
// controlling of the scheduler.
type Monitor struct {
	scheduler       *sim.Scheduler
	portNumber      int
	openBrowser     bool
	profileDuration time.Duration

	serverLock sync.Mutex
	server     *http.Server
	listener   net.Listener

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the dashboard in the default browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// RegisterScheduler registers the scheduler to be monitored.
func (m *Monitor) RegisterScheduler(s *sim.Scheduler) {
	m.scheduler = s
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate("progress"),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router serving the monitoring API and the dashboard.
func (m *Monitor) Handler() http.Handler {
	if m.scheduler == nil {
		log.Panic("monitor: no scheduler registered")
	}

	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseScheduler)
	r.HandleFunc("/api/continue", m.continueScheduler)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/workers", m.listWorkers)
	r.HandleFunc("/api/worker/{name}", m.workerDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server with a custom port if wanted.
func (m *Monitor) StartServer() {
	m.serverLock.Lock()
	defer m.serverLock.Unlock()

	if m.server != nil {
		log.Panic("monitor: server already started")
	}

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d", m.Port())
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func(server *http.Server) {
		err := server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}(m.server)

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}
}

// Port returns the port the server listens on, or 0 if it is not started.
func (m *Monitor) Port() int {
	if m.listener == nil {
		return 0
	}

	return m.listener.Addr().(*net.TCPAddr).Port
}

// StopServer shuts the web server down. It is a no-op if the server is not
// running.
func (m *Monitor) StopServer(ctx context.Context) error {
	m.serverLock.Lock()
	defer m.serverLock.Unlock()

	if m.server == nil {
		return nil
	}

	err := m.server.Shutdown(ctx)
	m.server = nil
	m.listener = nil

	return err
}

func (m *Monitor) pauseScheduler(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueScheduler(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%d}", m.scheduler.CurrentTime())
}

type statsRsp struct {
	sim.Stats

	Now          uint64 `json:"now"`
	Horizon      uint64 `json:"horizon"`
	TickDuration string `json:"tick_duration"`
	AsyncPolicy  string `json:"async_policy"`
	Running      bool   `json:"running"`
	Paused       bool   `json:"paused"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	s := m.scheduler

	rsp := statsRsp{
		Stats:        s.Stats(),
		Now:          uint64(s.CurrentTime()),
		Horizon:      uint64(s.Horizon()),
		TickDuration: s.TickDuration().String(),
		AsyncPolicy:  s.AsyncPolicy().String(),
		Running:      s.IsRunning(),
		Paused:       s.IsPaused(),
	}

	writeJSON(w, rsp)
}

type workerState struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Alarm     uint64 `json:"alarm"`
	Running   bool   `json:"running"`
	Finished  bool   `json:"finished"`
	Recovered string `json:"recovered,omitempty"`
}

func stateOf(worker *sim.Worker) *workerState {
	state := &workerState{
		Name:     worker.Name(),
		ID:       worker.ID(),
		Alarm:    uint64(worker.Alarm()),
		Running:  worker.StillRunning(),
		Finished: worker.IsFinished(),
	}

	if r := worker.Recovered(); r != nil {
		state.Recovered = fmt.Sprint(r)
	}

	return state
}

func (m *Monitor) listWorkers(w http.ResponseWriter, _ *http.Request) {
	workers := m.scheduler.Workers()

	states := make([]*workerState, 0, len(workers))
	for _, worker := range workers {
		states = append(states, stateOf(worker))
	}

	writeJSON(w, states)
}

func (m *Monitor) workerDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	worker := m.scheduler.WorkerByName(name)
	if worker == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Worker not found"))
		dieOnErr(err)

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(stateOf(worker))
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressBarSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
