package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("HookableBase", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *HookableBase
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewHookableBase()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke every hook in registration order", func() {
		first := NewMockHook(mockCtrl)
		second := NewMockHook(mockCtrl)
		domain.AcceptHook(first)
		domain.AcceptHook(second)

		ctx := HookCtx{Pos: HookPosBeforeTick, Item: VTimeInTick(3)}
		gomock.InOrder(
			first.EXPECT().Func(ctx),
			second.EXPECT().Func(ctx),
		)

		domain.InvokeHook(ctx)

		Expect(domain.NumHooks()).To(Equal(2))
	})

	It("should adapt plain functions", func() {
		var got *HookPos
		domain.AcceptHook(HookFunc(func(ctx HookCtx) { got = ctx.Pos }))

		domain.InvokeHook(HookCtx{Pos: HookPosAfterTick})

		Expect(got).To(BeIdenticalTo(HookPosAfterTick))
	})
})
