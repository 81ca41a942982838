/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ipc_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/odin-detector/odin-data-sub001/ipc"
)

var _ = Describe("ParamContainer", func() {
	var (
		pc       *ipc.ParamContainer
		port     uint32
		name     string
		lanes    []uint32
		enabled  bool
	)

	BeforeEach(func() {
		pc = ipc.NewParamContainer()
		port, name, enabled = 0, "", false
		lanes = nil

		pc.BindUint32("frame_receiver/port", func() uint32 { return port }, func(v uint32) { port = v })
		pc.BindString("frame_receiver/name", func() string { return name }, func(v string) { name = v })
		pc.BindBool("frame_receiver/enabled", func() bool { return enabled }, func(v bool) { enabled = v })
		pc.BindUint32Vector("frame_receiver/lanes",
			func() []uint32 { return lanes },
			func(v []uint32) { lanes = v },
		)
	})

	It("encodes every bound field at its path", func() {
		port, name, enabled, lanes = 8989, "rx0", true, []uint32{1, 2, 3}
		e := ipc.NewEnvelope(ipc.MsgAck, ipc.ValStatus, 1)
		pc.Encode(e)

		got, err := ipc.GetParam[uint32](e, "frame_receiver/port")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(uint32(8989)))
	})

	It("applies a partial update and bumps the version", func() {
		in := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 2)
		ipc.SetParam(in, "frame_receiver/port", uint32(7000))

		Expect(pc.Update(in)).To(Succeed())
		Expect(port).To(Equal(uint32(7000)))
		Expect(pc.Version()).To(Equal(int64(1)))

		// name/enabled/lanes were absent from `in` and must be untouched
		Expect(name).To(Equal(""))
		Expect(enabled).To(BeFalse())
	})

	It("replaces a vector field atomically rather than merging", func() {
		lanes = []uint32{1, 2}
		in := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 3)
		in.Params["frame_receiver"] = map[string]any{"lanes": []any{float64(9)}}

		Expect(pc.Update(in)).To(Succeed())
		Expect(lanes).To(Equal([]uint32{9}))
	})

	It("reports a type mismatch without blocking other fields", func() {
		in := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 4)
		ipc.SetParam(in, "frame_receiver/port", "oops")
		ipc.SetParam(in, "frame_receiver/name", "rx1")

		err := pc.Update(in)
		Expect(err).To(HaveOccurred())
		Expect(name).To(Equal("rx1"))
	})
})
