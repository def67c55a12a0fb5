package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chronos/sim"
)

var _ = Describe("Monitor", func() {
	var (
		s       *sim.Scheduler
		m       *Monitor
		handler http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	BeforeEach(func() {
		s = sim.MakeBuilder().WithTickDuration(time.Second).Build()
		s.RegisterWorkers(
			sim.NewWorker("a", s, sim.RoutineFunc(func() {})),
			sim.NewWorker("b", s, sim.RoutineFunc(func() {})),
		)

		m = NewMonitor()
		m.RegisterScheduler(s)
		handler = m.Handler()
	})

	It("should refuse to serve without a scheduler", func() {
		Expect(func() { NewMonitor().Handler() }).To(Panic())
	})

	It("should fall back to a random port", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(BeZero())
		Expect(NewMonitor().WithPortNumber(3000).portNumber).To(Equal(3000))
	})

	It("should report the current time", func() {
		rec := get("/api/now")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"now":0}`))
	})

	It("should pause and continue the scheduler", func() {
		get("/api/pause")
		Expect(s.IsPaused()).To(BeTrue())

		get("/api/continue")
		Expect(s.IsPaused()).To(BeFalse())
	})

	It("should report the stats", func() {
		Expect(s.Run()).To(Succeed())

		rsp := statsRsp{}
		Expect(json.Unmarshal(get("/api/stats").Body.Bytes(), &rsp)).
			To(Succeed())

		Expect(rsp.Ticks).To(Equal(s.Stats().Ticks))
		Expect(rsp.TickDuration).To(Equal("1s"))
		Expect(rsp.AsyncPolicy).To(Equal("continuous"))
		Expect(rsp.Running).To(BeFalse())
	})

	It("should list the workers", func() {
		states := []workerState{}
		Expect(json.Unmarshal(get("/api/workers").Body.Bytes(), &states)).
			To(Succeed())

		Expect(states).To(HaveLen(2))
		Expect(states[0].Name).To(Equal("a"))
		Expect(states[1].Name).To(Equal("b"))
		Expect(states[0].ID).To(Equal(s.WorkerByName("a").ID()))
	})

	It("should serialize a single worker", func() {
		rec := get("/api/worker/a")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should answer 404 for an unknown worker", func() {
		Expect(get("/api/worker/zzz").Code).To(Equal(http.StatusNotFound))
	})

	It("should list and complete progress bars", func() {
		bar := m.CreateProgressBar("Work", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		bars := []progressBarSnapshot{}
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).
			To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("Work"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(MatchJSON(`[]`))
	})

	It("should report the resource usage", func() {
		rsp := resourceRsp{}
		Expect(json.Unmarshal(get("/api/resource").Body.Bytes(), &rsp)).
			To(Succeed())

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a CPU profile", func() {
		m.profileDuration = 10 * time.Millisecond

		rec := get("/api/profile")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
	})

	It("should serve the dashboard", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should start and stop a server", func() {
		m.StartServer()
		Expect(m.Port()).NotTo(BeZero())

		rsp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/now", m.Port()))
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(rsp.Body)
		rsp.Body.Close()
		Expect(string(body)).To(MatchJSON(`{"now":0}`))

		Expect(m.StopServer(context.Background())).To(Succeed())
		Expect(m.StopServer(context.Background())).To(Succeed())
		Expect(m.Port()).To(BeZero())
	})
})

var _ = Describe("Horizon progress", func() {
	It("should follow the clock up to the horizon", func() {
		s := sim.MakeBuilder().
			WithTickDuration(time.Second).
			WithHorizon(5).
			Build()

		var w *sim.Worker
		w = sim.NewWorker("w", s, sim.RoutineFunc(func() {
			for w.Yield() == nil {
			}
		}))
		s.RegisterWorkers(w)

		m := NewMonitor()
		m.RegisterScheduler(s)
		bar := m.TrackHorizon()
		Expect(bar).NotTo(BeNil())

		Expect(s.Run()).To(Succeed())

		Expect(bar.Total).To(Equal(uint64(5)))
		Expect(bar.Finished).To(Equal(uint64(5)))
	})

	It("should not track an unbounded run", func() {
		m := NewMonitor()
		m.RegisterScheduler(sim.NewScheduler(time.Second))

		Expect(m.TrackHorizon()).To(BeNil())
	})
})
