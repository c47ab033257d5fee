package mqtt

import "log"

// queuedMsg stores a serialized MQTT message for replay after reconnection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineQueue is a fixed-capacity FIFO holding messages produced while
// the broker is unreachable. When full, the oldest message is dropped.
// Not safe for concurrent use — caller must synchronize.
type offlineQueue struct {
	items   []queuedMsg
	start   int // index of the oldest message
	size    int
	dropped bool // a message was dropped since the last drain
}

func newOfflineQueue(capacity int) *offlineQueue {
	return &offlineQueue{items: make([]queuedMsg, capacity)}
}

func (q *offlineQueue) add(msg queuedMsg) {
	n := len(q.items)
	if q.size == n {
		if !q.dropped {
			log.Printf("mqtt: offline queue full (%d messages), dropping oldest", n)
			q.dropped = true
		}
		q.items[q.start] = msg
		q.start = (q.start + 1) % n
		return
	}
	q.items[(q.start+q.size)%n] = msg
	q.size++
}

// drain returns the queued messages oldest-first and empties the queue.
func (q *offlineQueue) drain() []queuedMsg {
	if q.size == 0 {
		return nil
	}

	out := make([]queuedMsg, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.items[(q.start+i)%len(q.items)]
	}

	q.start = 0
	q.size = 0
	q.dropped = false
	return out
}

func (q *offlineQueue) length() int {
	return q.size
}
