package sim

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Async", func() {
	var s *Scheduler

	BeforeEach(func() {
		s = MakeBuilder().WithTickDuration(time.Second).Build()
	})

	It("should reject tasks before the run starts", func() {
		_, err := s.Async(func() (any, error) { return 1, nil })

		Expect(err).To(MatchError(ErrNotRunning))
	})

	It("should reject tasks after the run ends", func() {
		s.RegisterWorkers(NewWorker("w", s, RoutineFunc(func() {})))
		Expect(s.Run()).To(Succeed())

		_, err := s.Async(func() (any, error) { return 1, nil })

		Expect(err).To(MatchError(ErrAlreadyFinished))
	})

	It("should return one result per tick up to the time limit", func() {
		const gMax = 20
		counter := 0
		results := make([]int, 0)
		times := make([]VTimeInTick, 0)

		var w *Worker
		w = NewWorker("w", s, RoutineFunc(func() {
			for {
				v, err := Call(s, func() (int, error) {
					counter++
					return counter + 5, nil
				})
				if err != nil {
					return
				}

				results = append(results, v)
				times = append(times, w.CurrentTime())

				if w.CurrentTime() >= gMax {
					return
				}

				_ = w.Yield()
			}
		}))
		s.RegisterWorkers(w)

		Expect(s.Run()).To(Succeed())

		Expect(results).To(HaveLen(gMax + 1))
		for i, v := range results {
			Expect(v).To(Equal(i + 6))
			Expect(times[i]).To(Equal(VTimeInTick(i)))
		}
		Expect(s.Stats().AsyncRun).To(Equal(uint64(gMax + 1)))
	})

	It("should hand the closure's error back unchanged", func() {
		errBroke := errors.New("broke")
		var got error

		s.RegisterWorkers(NewWorker("w", s, RoutineFunc(func() {
			_, got = s.Async(func() (any, error) { return nil, errBroke })
		})))
		Expect(s.Run()).To(Succeed())

		Expect(got).To(BeIdenticalTo(errBroke))
	})

	It("should raise the closure's panic on the calling worker", func() {
		var raised any

		s.RegisterWorkers(NewWorker("w", s, RoutineFunc(func() {
			defer func() { raised = recover() }()
			_, _ = s.Async(func() (any, error) { panic("in closure") })
		})))
		Expect(s.Run()).To(Succeed())

		Expect(raised).To(Equal("in closure"))
	})

	It("should run tasks one at a time", func() {
		shared := 0
		const perWorker = 200

		for _, name := range []string{"a", "b", "c", "d"} {
			s.RegisterWorkers(NewWorker(name, s, RoutineFunc(func() {
				for i := 0; i < perWorker; i++ {
					_, _ = s.Async(func() (any, error) {
						shared++
						return nil, nil
					})
				}
			})))
		}
		Expect(s.Run()).To(Succeed())

		Expect(shared).To(Equal(4 * perWorker))
	})

	It("should refuse tasks on behalf of a finished worker", func() {
		ran := false
		var finishedErr, liveErr error

		var w *Worker
		w = NewWorker("w", s, RoutineFunc(func() {
			_, liveErr = s.AsyncFor(w, func() (any, error) { return nil, nil })

			w.MarkFinished()
			_, finishedErr = s.AsyncFor(w, func() (any, error) {
				ran = true
				return nil, nil
			})
		}))
		s.RegisterWorkers(w)

		Expect(s.Run()).To(Succeed())

		Expect(liveErr).NotTo(HaveOccurred())
		Expect(finishedErr).To(MatchError(ErrAlreadyFinished))
		Expect(ran).To(BeFalse())
	})

	It("should refuse tasks once the horizon has passed", func() {
		s = MakeBuilder().
			WithTickDuration(time.Second).
			WithHorizon(3).
			Build()

		var lateErr error
		var w *Worker
		w = NewWorker("w", s, RoutineFunc(func() {
			for w.Yield() == nil {
			}
			_, lateErr = s.Async(func() (any, error) { return 1, nil })
		}))
		s.RegisterWorkers(w)

		Expect(s.Run()).To(Succeed())
		Expect(lateErr).To(MatchError(ErrAlreadyFinished))
	})

	It("should attribute every drained task to a tick record", func() {
		s = MakeBuilder().WithTickDuration(50 * time.Millisecond).Build()
		perTick := 0
		s.AcceptHook(HookFunc(func(ctx HookCtx) {
			if ctx.Pos == HookPosAfterTick {
				perTick += ctx.Item.(TickRecord).AsyncRun
			}
		}))

		var w *Worker
		w = NewWorker("w", s, RoutineFunc(func() {
			for i := 0; i < 10; i++ {
				_, _ = s.Async(func() (any, error) { return i, nil })
				_ = w.Yield()
			}
		}))
		s.RegisterWorkers(w)

		Expect(s.Run()).To(Succeed())

		Expect(s.Stats().AsyncRun).To(Equal(uint64(10)))
		Expect(perTick).To(Equal(10))
	})

	Context("when draining once per tick", func() {
		BeforeEach(func() {
			s = MakeBuilder().
				WithTickDuration(20 * time.Millisecond).
				WithAsyncPolicy(AsyncDrainPerTick).
				Build()
		})

		It("should count the drained tasks in the tick that ran them", func() {
			counts := make(map[VTimeInTick]int)
			s.AcceptHook(HookFunc(func(ctx HookCtx) {
				if ctx.Pos == HookPosAfterTick {
					rec := ctx.Item.(TickRecord)
					counts[rec.Tick] = rec.AsyncRun
				}
			}))

			var w *Worker
			w = NewWorker("w", s, RoutineFunc(func() {
				_ = w.SleepUntil(2)
				_, _ = s.Async(func() (any, error) { return nil, nil })
			}))
			s.RegisterWorkers(w)

			Expect(s.Run()).To(Succeed())

			Expect(counts[2]).To(BeZero())
			Expect(counts[3]).To(Equal(1))
		})

		It("should run the task on the next tick, before the tick callback", func() {
			var ranAt, resumedAt, submittedAt VTimeInTick
			var tickedAt []VTimeInTick

			var w *Worker
			w = NewWorker("w", s, RoutineFunc(func() {
				_ = w.SleepUntil(2)
				submittedAt = w.CurrentTime()
				_, _ = s.Async(func() (any, error) {
					ranAt = s.CurrentTime()
					return nil, nil
				})
				resumedAt = w.CurrentTime()
			}))
			s.SetTicker(TickerFunc(func() {
				if ranAt != 0 && len(tickedAt) == 0 {
					tickedAt = append(tickedAt, s.CurrentTime())
				}
			}))
			s.RegisterWorkers(w)

			Expect(s.Run()).To(Succeed())

			Expect(submittedAt).To(Equal(VTimeInTick(2)))
			Expect(ranAt).To(Equal(VTimeInTick(3)))
			Expect(resumedAt).To(Equal(VTimeInTick(3)))
			Expect(tickedAt).To(Equal([]VTimeInTick{3}))
		})
	})
})
