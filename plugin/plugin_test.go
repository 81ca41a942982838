/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package plugin_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

// recorder is a minimal Plugin used to assert chain behavior without a
// concrete transform.
type recorder struct {
	name string
	mu   sync.Mutex
	seen []uint32
}

func newRecorder(name string) *recorder { return &recorder{name: name} }

func (r *recorder) Name() string { return r.name }
func (r *recorder) ProcessFrame(f *frame.Frame) {
	r.mu.Lock()
	r.seen = append(r.seen, f.FrameNumber)
	r.mu.Unlock()
}
func (r *recorder) Configure(*ipc.Envelope) error        { return nil }
func (r *recorder) RequestConfiguration(*ipc.Envelope)   {}
func (r *recorder) Status(*ipc.Envelope)                 {}
func (r *recorder) Version() plugin.Version              { return plugin.Version{Major: 1} }
func (r *recorder) ResetStatistics()                     {}

func (r *recorder) Seen() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.seen...)
}

// panicky is a recorder whose ProcessFrame panics on demand, used to assert
// that a dispatch panic drops the offending Frame instead of fanning it out.
type panicky struct {
	recorder
	when uint32
}

func (p *panicky) ProcessFrame(f *frame.Frame) {
	if f.FrameNumber == p.when {
		panic("boom")
	}
	p.recorder.ProcessFrame(f)
}

var _ = Describe("Chain", func() {
	It("fans a pushed frame out to every downstream node", func() {
		c := plugin.NewChain()
		a, b1, b2 := newRecorder("a"), newRecorder("b1"), newRecorder("b2")
		c.Register(a)
		c.Register(b1)
		c.Register(b2)
		Expect(c.Connect("a", "b1", false)).To(Succeed())
		Expect(c.Connect("a", "b2", true)).To(Succeed())

		f := frame.NewOwned(frame.Metadata{FrameNumber: 7}, nil)
		Expect(c.Push("a", f)).To(Succeed())

		Eventually(b1.Seen, time.Second).Should(Equal([]uint32{7}))
		Eventually(b2.Seen, time.Second).Should(Equal([]uint32{7}))
		Eventually(a.Seen, time.Second).Should(Equal([]uint32{7}))
	})

	It("rejects a connect that would create a cycle", func() {
		c := plugin.NewChain()
		c.Register(newRecorder("a"))
		c.Register(newRecorder("b"))
		Expect(c.Connect("a", "b", false)).To(Succeed())
		Expect(c.Connect("b", "a", false)).To(HaveOccurred())
	})

	It("treats RemoveCallback on an absent name as a no-op", func() {
		c := plugin.NewChain()
		c.Register(newRecorder("a"))
		Expect(func() { c.RemoveCallback("does-not-exist") }).NotTo(Panic())
	})

	It("delivers an injected end-of-acquisition sentinel", func() {
		c := plugin.NewChain()
		sink := newRecorder("sink")
		c.Register(sink)
		Expect(c.InjectEOA("sink")).To(Succeed())
		Eventually(func() int { return len(sink.Seen()) }, time.Second).Should(Equal(1))
	})

	It("drops the offending frame and records last_error on a process_frame panic", func() {
		c := plugin.NewChain()
		src := &panicky{recorder: recorder{name: "src"}, when: 2}
		sink := newRecorder("sink")
		c.Register(src)
		c.Register(sink)
		Expect(c.Connect("src", "sink", true)).To(Succeed())

		Expect(c.Push("src", frame.NewOwned(frame.Metadata{FrameNumber: 1}, nil))).To(Succeed())
		Expect(c.Push("src", frame.NewOwned(frame.Metadata{FrameNumber: 2}, nil))).To(Succeed())
		Expect(c.Push("src", frame.NewOwned(frame.Metadata{FrameNumber: 3}, nil))).To(Succeed())

		Eventually(sink.Seen, time.Second).Should(Equal([]uint32{1, 3}))
		Eventually(func() error { return c.LastError("src") }, time.Second).ShouldNot(BeNil())
		Expect(c.LastError("does-not-exist")).To(BeNil())
	})

	It("publishes meta items on the shared channel", func() {
		c := plugin.NewChain()
		publish := c.Publisher("a")
		publish("exposure_ms", 12.5, nil)

		Eventually(c.Meta(), time.Second).Should(Receive(Equal(plugin.MetaItem{
			Plugin: "a", Item: "exposure_ms", Value: 12.5,
		})))
	})
})
