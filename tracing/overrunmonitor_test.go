package tracing

import (
	"bytes"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chronos/sim"
)

var _ = Describe("OverrunMonitor", func() {
	var (
		buf     *bytes.Buffer
		monitor *OverrunMonitor
		tick    sim.VTimeInTick
	)

	feed := func(overruns ...bool) {
		for _, o := range overruns {
			tick++
			monitor.Func(sim.HookCtx{
				Pos:  sim.HookPosAfterTick,
				Item: sim.TickRecord{Tick: tick, Overrun: o},
			})
		}
	}

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		logger := slog.New(slog.NewTextHandler(buf, nil))
		monitor = NewOverrunMonitor(4, 0.5, logger)
		tick = 0
	})

	It("should not warn before the window is full", func() {
		feed(true, true, true)

		Expect(monitor.Ratio()).To(Equal(1.0))
		Expect(monitor.Warning()).To(BeFalse())
		Expect(buf.String()).To(BeEmpty())
	})

	It("should warn once when overruns persist", func() {
		feed(true, true, true, false, true, true)

		Expect(monitor.Warning()).To(BeTrue())
		Expect(monitor.Total()).To(Equal(uint64(5)))
		Expect(bytes.Count(buf.Bytes(), []byte("level=WARN"))).To(Equal(1))
	})

	It("should slide the window", func() {
		feed(true, true, true, true)
		Expect(monitor.Ratio()).To(Equal(1.0))

		feed(false, false, false)
		Expect(monitor.Ratio()).To(Equal(0.25))
		Expect(monitor.Warning()).To(BeFalse())
		Expect(monitor.Total()).To(Equal(uint64(4)))
	})

	It("should ignore other hook positions", func() {
		monitor.Func(sim.HookCtx{
			Pos:  sim.HookPosBeforeTick,
			Item: sim.VTimeInTick(1),
		})

		Expect(monitor.Ratio()).To(BeZero())
	})

	It("should refuse an empty window", func() {
		Expect(func() { NewOverrunMonitor(0, 0.5, nil) }).To(Panic())
	})
})
