package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// A retained message replaces a buffered retained message for the same topic,
// since the broker would only keep the last one anyway.
// Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

// push stores msg. It reports true the first time a message is dropped
// since the last drain, so the caller can log the overflow once.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	if msg.retained {
		if i, ok := r.findRetained(msg.topic); ok {
			r.buf[i] = msg
			return false
		}
	}

	if r.count == r.capacity {
		first := !r.overflow
		r.overflow = true
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return first
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
	return false
}

func (r *ringBuffer) findRetained(topic string) (int, bool) {
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		idx := (start + i) % r.capacity
		if r.buf[idx].retained && r.buf[idx].topic == topic {
			return idx, true
		}
	}
	return 0, false
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
