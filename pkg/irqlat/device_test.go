package irqlat

import (
	"context"
	"sync"
	"time"

	"irqlat/pkg/port"
	"irqlat/pkg/raspberry"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingIRQ logs attach and detach calls of the wrapped line.
type recordingIRQ struct {
	*raspberry.EmuIRQ

	mu  sync.Mutex
	log []string
}

func (r *recordingIRQ) Attach(h func()) error {
	err := r.EmuIRQ.Attach(h)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.log = append(r.log, "attach failed")
		return err
	}
	r.log = append(r.log, "attach")
	return nil
}

func (r *recordingIRQ) Detach() error {
	r.mu.Lock()
	r.log = append(r.log, "detach")
	r.mu.Unlock()
	return r.EmuIRQ.Detach()
}

func (r *recordingIRQ) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

type observer struct {
	mu       sync.Mutex
	attached int
	finished []Outcome
}

func (o *observer) Attached(int) {
	o.mu.Lock()
	o.attached++
	o.mu.Unlock()
}

func (o *observer) Finished(_ int, out Outcome) {
	o.mu.Lock()
	o.finished = append(o.finished, out)
	o.mu.Unlock()
}

// edgeAfter delivers a rising edge once the handler is attached.
func edgeAfter(irq *raspberry.EmuIRQ, d time.Duration) {
	go func() {
		defer GinkgoRecover()
		Eventually(irq.Attached).Should(BeTrue())
		time.Sleep(d)
		irq.EmuEdge(port.EdgeRising)
	}()
}

var _ = Describe("device", func() {

	var (
		out *raspberry.EmuPin
		irq *recordingIRQ
		dev *Device
		obs *observer
		ctx context.Context
	)

	BeforeEach(func() {
		emu := raspberry.NewEmu()
		var err error
		out, err = emu.NewOutputPin(147)
		Expect(err).NotTo(HaveOccurred())
		line, err := emu.NewIRQLine(146)
		Expect(err).NotTo(HaveOccurred())
		irq = &recordingIRQ{EmuIRQ: line}
		obs = &observer{}
		dev = New(out, irq, WithObserver(obs))
		ctx = context.Background()
	})

	// gateIsFree checks that an independent test can take the gate right away.
	gateIsFree := func() {
		release, ok := dev.gate.tryAcquire()
		Expect(ok).To(BeTrue(), "gate still held")
		release()
	}

	When("idle", func() {

		It("has nothing armed", func() {
			Expect(dev.Pending()).To(BeNil())
			Expect(dev.Busy()).To(BeFalse())
			Expect(irq.Attached()).To(BeFalse())
			Expect(dev.Status()).To(Equal(Status{OutputPin: 147, IRQPin: 146}))
		})

		It("clears the test pin on a spurious edge", func() {
			Expect(out.Set(port.High)).To(Succeed())
			dev.HandleEdge()
			Expect(out.Level()).To(Equal(port.Low))
			Expect(dev.Pending()).To(BeNil())
			Expect(dev.Status().Edges).To(BeEquivalentTo(1))
		})

	})

	When("running a latency test", func() {

		It("completes when the edge arrives", func() {
			edgeAfter(irq.EmuIRQ, 10*time.Millisecond)
			Expect(dev.RunLatency(ctx, 500*time.Millisecond)).To(Equal(Completed))

			Expect(out.Writes()).To(Equal([]port.Level{port.High, port.Low}))
			Expect(irq.Log()).To(Equal([]string{"attach", "detach"}))
			Expect(dev.Pending()).To(BeNil())
			Expect(obs.attached).To(Equal(1))
			Expect(obs.finished).To(Equal([]Outcome{Completed}))
			gateIsFree()
		})

		It("arms the signal while waiting", func() {
			go func() {
				defer GinkgoRecover()
				Eventually(irq.Attached).Should(BeTrue())
				Expect(dev.Pending()).NotTo(BeNil())
				Expect(dev.Pending().State()).To(Equal(Armed))
				Expect(dev.Status().Armed).To(BeTrue())
				Expect(dev.Busy()).To(BeTrue())
				irq.EmuEdge(port.EdgeRising)
			}()
			Expect(dev.RunLatency(ctx, time.Second)).To(Equal(Completed))
		})

		It("ignores further edges after the first one", func() {
			go func() {
				defer GinkgoRecover()
				Eventually(irq.Attached).Should(BeTrue())
				Eventually(out.Level).Should(Equal(port.High))
				for i := 0; i < 3; i++ {
					irq.EmuEdge(port.EdgeRising)
				}
			}()
			Expect(dev.RunLatency(ctx, time.Second)).To(Equal(Completed))
			Expect(dev.Pending()).To(BeNil())
		})

		It("times out without an edge", func() {
			Expect(dev.RunLatency(ctx, 20*time.Millisecond)).To(Equal(TimedOut))

			Expect(out.Level()).To(Equal(port.High))
			Expect(irq.Log()).To(Equal([]string{"attach", "detach"}))
			Expect(dev.Pending()).To(BeNil())
			Expect(obs.finished).To(Equal([]Outcome{TimedOut}))
			gateIsFree()

			By("ignoring an edge after the timeout")
			Expect(irq.EmuEdge(port.EdgeRising)).To(BeFalse())
			dev.HandleEdge()
			Expect(dev.Pending()).To(BeNil())
		})

		It("doesn't toggle any pin if attach fails", func() {
			irq.AttachErr = errors.New("device or resource busy")
			_, err := dev.RunLatency(ctx, time.Second)
			Expect(err).To(MatchError(ErrHandlerAttachFailed))

			Expect(out.Writes()).To(BeEmpty())
			Expect(irq.Log()).To(Equal([]string{"attach failed"}))
			Expect(dev.Pending()).To(BeNil())
			Expect(obs.attached).To(BeZero())
			gateIsFree()

			By("recovering once the line is free again")
			irq.AttachErr = nil
			edgeAfter(irq.EmuIRQ, 0)
			Expect(dev.RunLatency(ctx, time.Second)).To(Equal(Completed))
		})

		It("detaches if the test pin can't be set", func() {
			out.SetErr = errors.New("io error")
			_, err := dev.RunLatency(ctx, time.Second)
			Expect(err).To(MatchError(ErrPinWrite))
			Expect(irq.Log()).To(Equal([]string{"attach", "detach"}))
			Expect(dev.Pending()).To(BeNil())
			Expect(obs.finished).To(BeEmpty())
			gateIsFree()
		})

		It("cleans up when cancelled while waiting", func() {
			ctx, cancel := context.WithCancel(ctx)
			go func() {
				defer GinkgoRecover()
				Eventually(irq.Attached).Should(BeTrue())
				cancel()
			}()
			o, err := dev.RunLatency(ctx, 10*time.Second)
			Expect(err).To(MatchError(ErrCancelled))
			Expect(o).To(Equal(TimedOut))
			Expect(irq.Log()).To(Equal([]string{"attach", "detach"}))
			Expect(dev.Pending()).To(BeNil())
			gateIsFree()
		})

	})

	When("running a toggle test", func() {

		It("toggles the test pin without the irq handler", func() {
			Expect(dev.RunToggle(ctx, DefaultIterations)).To(Succeed())

			writes := out.Writes()
			Expect(writes).To(HaveLen(2 * DefaultIterations))
			for i, l := range writes {
				Expect(l).To(Equal(port.Level(1-i%2)), "write %d", i)
			}
			Expect(irq.Log()).To(BeEmpty())
			gateIsFree()
		})

		It("stops on a pin write error", func() {
			out.SetErr = errors.New("io error")
			Expect(dev.RunToggle(ctx, 10)).To(MatchError(ErrPinWrite))
			gateIsFree()
		})

	})

	When("tests are started concurrently", func() {

		It("runs latency tests one after the other", func() {
			var wg sync.WaitGroup
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(dev.RunLatency(ctx, 30*time.Millisecond)).To(Equal(TimedOut))
				}()
			}
			wg.Wait()
			Expect(irq.Log()).To(Equal([]string{"attach", "detach", "attach", "detach"}))
		})

		It("blocks the second caller until the first one is done", func() {
			first := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(first)
				Expect(dev.RunLatency(ctx, time.Second)).To(Equal(Completed))
			}()
			Eventually(irq.Attached).Should(BeTrue())

			second := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(second)
				Expect(dev.RunToggle(ctx, 5)).To(Succeed())
			}()
			Consistently(second, 50*time.Millisecond).ShouldNot(BeClosed())
			Expect(out.Writes()).To(Equal([]port.Level{port.High}))

			irq.EmuEdge(port.EdgeRising)
			Eventually(first).Should(BeClosed())
			Eventually(second).Should(BeClosed())

			writes := out.Writes()
			Expect(writes).To(HaveLen(2 + 10))
			Expect(writes[:2]).To(Equal([]port.Level{port.High, port.Low}))
			Expect(irq.Log()).To(Equal([]string{"attach", "detach"}))
		})

		It("cancels a caller waiting for the gate", func() {
			done := make(chan struct{})
			go func() {
				defer close(done)
				_, _ = dev.RunLatency(ctx, 100*time.Millisecond)
			}()
			Eventually(irq.Attached).Should(BeTrue())

			cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			Expect(dev.RunToggle(cctx, 5)).To(MatchError(ErrCancelled))
			Expect(out.Writes()).To(Equal([]port.Level{port.High}))
			Eventually(done).Should(BeClosed())
			gateIsFree()
		})

	})

	When("closed", func() {

		It("waits for a running test and rejects new ones", func() {
			go func() {
				defer GinkgoRecover()
				Expect(dev.RunLatency(ctx, 50*time.Millisecond)).To(Equal(TimedOut))
			}()
			Eventually(irq.Attached).Should(BeTrue())

			Expect(dev.Close(ctx)).To(Succeed())
			Expect(irq.Attached()).To(BeFalse())
			Expect(dev.Status().Closed).To(BeTrue())

			_, err := dev.RunLatency(ctx, time.Second)
			Expect(err).To(MatchError(ErrClosed))
			Expect(dev.RunToggle(ctx, 1)).To(MatchError(ErrClosed))
		})

	})

})
