package irqlat

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("completion signal", func() {

	It("starts armed", func() {
		Expect(Arm().State()).To(Equal(Armed))
	})

	It("completes when fired before the deadline", func() {
		c := Arm()
		go func() {
			time.Sleep(10 * time.Millisecond)
			c.Fire()
		}()
		Expect(c.Wait(context.Background(), 500*time.Millisecond)).To(Equal(Completed))
		Expect(c.State()).To(Equal(Fired))
	})

	It("completes when fired before waiting", func() {
		c := Arm()
		c.Fire()
		Expect(c.Wait(context.Background(), time.Millisecond)).To(Equal(Completed))
	})

	It("fires exactly once", func() {
		c := Arm()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Fire()
			}()
		}
		wg.Wait()
		Expect(c.State()).To(Equal(Fired))
		Expect(c.Wait(context.Background(), time.Millisecond)).To(Equal(Completed))
		Expect(c.Fire).NotTo(Panic())
	})

	It("is abandoned on timeout and ignores late fires", func() {
		c := Arm()
		Expect(c.Wait(context.Background(), 5*time.Millisecond)).To(Equal(TimedOut))
		Expect(c.State()).To(Equal(Abandoned))
		Expect(c.Fire).NotTo(Panic())
		Expect(c.State()).To(Equal(Abandoned))
	})

	It("is abandoned on cancellation", func() {
		c := Arm()
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
		o, err := c.Wait(ctx, time.Second)
		Expect(err).To(MatchError(ErrCancelled))
		Expect(o).To(Equal(TimedOut))
		Expect(c.State()).To(Equal(Abandoned))
		c.Fire()
		Expect(c.State()).To(Equal(Abandoned))
	})

	It("never reports both outcomes when fire races the deadline", func() {
		for i := 0; i < 200; i++ {
			c := Arm()
			go c.Fire()
			o, err := c.Wait(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			switch o {
			case Completed:
				Expect(c.State()).To(Equal(Fired))
			case TimedOut:
				Expect(c.State()).To(Equal(Abandoned))
			default:
				Fail("unexpected outcome " + o.String())
			}
		}
	})

	DescribeTable("state names",
		func(s SignalState, name string) {
			Expect(s.String()).To(Equal(name))
		},
		Entry(nil, Armed, "armed"),
		Entry(nil, Fired, "fired"),
		Entry(nil, Abandoned, "abandoned"),
		Entry(nil, SignalState(42), "invalid"),
	)

})
