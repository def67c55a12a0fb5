package sim

import (
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IDGenerator", func() {
	It("should number each kind separately", func() {
		g := newSequentialIDGenerator()

		Expect(g.Generate("worker")).To(Equal("worker-1"))
		Expect(g.Generate("worker")).To(Equal("worker-2"))
		Expect(g.Generate("bar")).To(Equal("bar-1"))
	})

	It("should not repeat sequential ids under concurrent use", func() {
		g := newSequentialIDGenerator()
		ids := make(chan string, 400)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 100; k++ {
					ids <- g.Generate("worker")
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[string]bool)
		for id := range ids {
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = true
		}
		Expect(seen).To(HaveLen(400))
	})

	It("should generate unique xid based ids", func() {
		g := xidGenerator{}
		seen := make(map[string]bool)

		for i := 0; i < 100; i++ {
			id := g.Generate("worker")
			Expect(strings.HasPrefix(id, "worker-")).To(BeTrue())
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = true
		}
	})

	It("should not switch generator once in use", func() {
		GetIDGenerator()

		Expect(UseParallelIDGenerator).To(Panic())
	})
})
