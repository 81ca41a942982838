/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ipc_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/ipc"
)

var _ = Describe("Reactor", func() {
	It("dispatches a registered channel's values in order", func() {
		r := ipc.NewReactor()
		ch := make(chan any, 2)
		var got []any

		r.RegisterChannel("test", ch, func(v any) error {
			got = append(got, v)
			if len(got) == 2 {
				r.Stop()
			}
			return nil
		})
		ch <- 1
		ch <- 2

		Expect(r.Run()).To(Succeed())
		Expect(got).To(Equal([]any{1, 2}))
	})

	It("fires a timer after its delay and can repeat it", func() {
		r := ipc.NewReactor()
		fires := 0

		r.RegisterTimer("tick", 5*time.Millisecond, func(now int64) (time.Duration, bool) {
			fires++
			if fires >= 3 {
				r.Stop()
				return 0, false
			}
			return 5 * time.Millisecond, true
		})

		Expect(r.Run()).To(Succeed())
		Expect(fires).To(Equal(3))
	})

	It("unwinds cleanly when a channel callback signals shutdown", func() {
		r := ipc.NewReactor()
		ch := make(chan any, 1)
		r.RegisterChannel("ctrl", ch, func(v any) error { return cos.ErrShutdown })
		ch <- "shutdown"

		Expect(r.RunUntilShutdown()).To(Succeed())
	})

	It("propagates a non-shutdown callback error out of Run", func() {
		r := ipc.NewReactor()
		ch := make(chan any, 1)
		boom := cos.NewErrPluginFailure("dummy", nil)
		r.RegisterChannel("ctrl", ch, func(v any) error { return boom })
		ch <- "go"

		err := r.Run()
		Expect(err).To(Equal(boom))
		Expect(r.Err()).To(Equal(boom))
	})
})
