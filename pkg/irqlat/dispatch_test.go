package irqlat

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"irqlat/pkg/port"
	"irqlat/pkg/raspberry"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// chunkReader returns one chunk per read, then err.
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(b []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(b, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

var _ = Describe("dispatcher", func() {

	var (
		emu     *raspberry.Emu
		out     *raspberry.EmuPin
		irq     *raspberry.EmuIRQ
		dev     *Device
		results []Result
		dp      *Dispatcher
		ctx     context.Context
	)

	BeforeEach(func() {
		emu = raspberry.NewEmu()
		emu.Loopback = true
		var err error
		out, err = emu.NewOutputPin(147)
		Expect(err).NotTo(HaveOccurred())
		irq, err = emu.NewIRQLine(146)
		Expect(err).NotTo(HaveOccurred())
		dev = New(out, irq)
		results = nil
		dp = NewDispatcher(dev,
			WithTimeout(200*time.Millisecond),
			WithIterations(DefaultIterations),
			WithListener(func(r Result) { results = append(results, r) }))
		ctx = context.Background()
	})

	It("does nothing for an empty command", func() {
		r, err := dp.Dispatch(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(Result{}))
		Expect(out.Writes()).To(BeEmpty())
		Expect(results).To(BeEmpty())

		n, err := dp.Write([]byte{})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("doesn't touch the gate for an empty command", func() {
		release, ok := dev.gate.tryAcquire()
		Expect(ok).To(BeTrue())
		defer release()

		Expect(dp.Write(nil)).To(BeZero())
	})

	It("runs the latency test for '1'", func() {
		r, err := dp.Dispatch(ctx, []byte("1\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Consumed).To(Equal(2))
		Expect(r.Test).To(Equal(LatencyTest))
		Expect(r.Outcome).To(Equal(Completed))
		Expect(out.Writes()).To(Equal([]port.Level{port.High, port.Low}))
		Expect(irq.Attached()).To(BeFalse())
		Expect(results).To(ConsistOf(r))
	})

	It("reports a missing jumper", func() {
		emu2 := raspberry.NewEmu()
		out2, _ := emu2.NewOutputPin(1)
		irq2, _ := emu2.NewIRQLine(2)
		dp := NewDispatcher(New(out2, irq2), WithTimeout(10*time.Millisecond))

		r, err := dp.Dispatch(ctx, []byte("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Outcome).To(Equal(TimedOut))
		Expect(r.Consumed).To(Equal(1))
		Expect(out2.Level()).To(Equal(port.High))
	})

	DescribeTable("runs the toggle test for anything else",
		func(cmd string) {
			n, err := dp.Write([]byte(cmd))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(cmd)))
			Expect(out.Writes()).To(HaveLen(2 * DefaultIterations))
			Expect(irq.Attaches()).To(BeZero())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Test).To(Equal(ToggleTest))
			Expect(results[0].Outcome).To(Equal(Completed))
		},
		Entry(nil, "x"),
		Entry(nil, "0"),
		Entry(nil, "21"),
		Entry(nil, "\n"),
	)

	It("surfaces an attach failure", func() {
		irq.AttachErr = errors.New("busy")
		r, err := dp.Dispatch(ctx, []byte("1"))
		Expect(err).To(MatchError(ErrHandlerAttachFailed))
		Expect(r.Consumed).To(BeZero())
		Expect(r.Test).To(Equal(LatencyTest))
		Expect(results).To(BeEmpty())
	})

	It("marshals results", func() {
		b, err := json.Marshal(Result{Consumed: 1, Test: LatencyTest, Outcome: TimedOut})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(And(
			ContainSubstring(`"test":"latency"`),
			ContainSubstring(`"outcome":"timedout"`)))

		var o Outcome
		Expect(o.UnmarshalText([]byte("completed"))).To(Succeed())
		Expect(o).To(Equal(Completed))
		Expect(o.UnmarshalText([]byte("late"))).NotTo(Succeed())
	})

	When("serving a control channel", func() {

		It("dispatches each read until EOF", func() {
			r := &chunkReader{chunks: []string{"1\n", "x", "1"}, err: io.EOF}
			Expect(dp.Serve(ctx, r)).To(Succeed())
			Expect(results).To(HaveLen(3))
			Expect(results[0].Test).To(Equal(LatencyTest))
			Expect(results[1].Test).To(Equal(ToggleTest))
			Expect(results[2].Test).To(Equal(LatencyTest))
		})

		It("dispatches a long write as one command", func() {
			r := &chunkReader{chunks: []string{"1" + strings.Repeat("x", 1000)}, err: io.EOF}
			Expect(dp.Serve(ctx, r)).To(Succeed())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Test).To(Equal(LatencyTest))
			Expect(results[0].Consumed).To(Equal(1001))
		})

		It("returns invalid input on read errors", func() {
			r := &chunkReader{err: errors.New("bad address")}
			Expect(dp.Serve(ctx, r)).To(MatchError(ErrInvalidInput))
			Expect(dev.Busy()).To(BeFalse())
		})

		It("stops when cancelled", func() {
			ctx, cancel := context.WithCancel(ctx)
			cancel()
			Expect(dp.Serve(ctx, strings.NewReader("1"))).To(MatchError(ErrCancelled))
			Expect(results).To(BeEmpty())
		})

	})

})
