package dispatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/dstadnik/truefalse/internal/store"
)

func TestQueue_PreservesOrder(t *testing.T) {
	q := newQueue()
	const n = 100
	for i := 0; i < n; i++ {
		q.in <- store.Message{Payload: fmt.Sprint(i)}
	}
	close(q.in)

	i := 0
	for msg := range q.out {
		if msg.Payload != fmt.Sprint(i) {
			t.Fatalf("message %d has payload %q", i, msg.Payload)
		}
		i++
	}
	if i != n {
		t.Errorf("received %d messages, want %d", i, n)
	}
}

func TestQueue_NeverBlocksProducer(t *testing.T) {
	q := newQueue()

	// No consumer at all: the producer side must still accept everything.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			q.in <- store.Message{Payload: fmt.Sprint(i)}
		}
		close(q.in)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("producer blocked on an unbounded queue")
	}

	count := 0
	for range q.out {
		count++
	}
	if count != 10000 {
		t.Errorf("drained %d messages, want 10000", count)
	}
}

func TestQueue_DrainsBufferOnClose(t *testing.T) {
	q := newQueue()
	q.in <- store.Message{Payload: "a"}
	q.in <- store.Message{Payload: "b"}
	close(q.in)

	var got []string
	for msg := range q.out {
		got = append(got, msg.Payload)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("drained %v, want [a b]", got)
	}
}
