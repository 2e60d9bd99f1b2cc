package dispatch

import "github.com/dstadnik/truefalse/internal/store"

// queue is an unbounded FIFO between a subscription pump and its consumer.
// Unbounded on purpose: a slow consumer of one message type must never push
// back into the store subscription and stall the other types.
type queue struct {
	in  chan store.Message
	out chan store.Message
}

func newQueue() *queue {
	q := &queue{
		in:  make(chan store.Message),
		out: make(chan store.Message),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	var buf []store.Message
	for {
		var out chan store.Message
		var head store.Message
		if len(buf) > 0 {
			out = q.out
			head = buf[0]
		}
		select {
		case msg, ok := <-q.in:
			if !ok {
				for _, m := range buf {
					q.out <- m
				}
				close(q.out)
				return
			}
			buf = append(buf, msg)
		case out <- head:
			buf = buf[1:]
		}
	}
}
