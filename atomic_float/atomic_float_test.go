package atomic_float

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicFloat64(t *testing.T) {
	Convey("When an AtomicFloat64 is created", t, func() {
		af := NewAtomicFloat64(-1.5)

		Convey("It reads back the initial value", func() {
			So(af.AtomicRead(), ShouldEqual, -1.5)
		})

		Convey("AtomicSet overwrites the value", func() {
			af.AtomicSet(42.25)
			So(af.AtomicRead(), ShouldEqual, 42.25)
		})

		Convey("AtomicAdd succeeds without contention", func() {
			newVal, ok := af.AtomicAdd(0.5)
			So(ok, ShouldBeTrue)
			So(newVal, ShouldEqual, -1.0)
			So(af.AtomicRead(), ShouldEqual, -1.0)
		})
	})

	Convey("The zero value is usable", t, func() {
		var af AtomicFloat64
		So(af.AtomicRead(), ShouldEqual, 0.0)
	})
}

func TestAtomicAdd(t *testing.T) {
	Convey("When multiple writers increment and decrement concurrently with retries", t, func() {
		af := NewAtomicFloat64(0)
		numOps := 2000
		numWriters := 50

		start := make(chan struct{})
		wg := sync.WaitGroup{}
		wg.Add(numWriters * 2)
		worker := func(addend float64) {
			defer wg.Done()
			<-start
			for i := 0; i < numOps; i++ {
				for _, ok := af.AtomicAdd(addend); !ok; _, ok = af.AtomicAdd(addend) {
				}
			}
		}

		for i := 0; i < numWriters; i++ {
			go worker(1.0)
			go worker(-1.0)
		}
		close(start)
		wg.Wait()

		So(af.AtomicRead(), ShouldEqual, 0.0)
	})

	Convey("When readers sample while a single writer adds", t, func() {
		af := NewAtomicFloat64(0)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 10000; i++ {
				_, _ = af.AtomicAdd(1)
			}
		}()

		last := 0.0
		monotonic := true
		for running := true; running; {
			select {
			case <-done:
				running = false
			default:
			}
			cur := af.AtomicRead()
			if cur < last {
				monotonic = false
			}
			last = cur
		}

		So(monotonic, ShouldBeTrue)
		So(af.AtomicRead(), ShouldEqual, 10000.0)
	})
}
