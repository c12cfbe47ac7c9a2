package transport

// maxSender tracks a flow-control limit this endpoint advertises to the
// peer (MAX_DATA or MAX_STREAM_DATA): the largest value acked so far, the
// largest value currently in flight, and the largest value ever committed
// to a packet. It answers "is it worth sending an update yet" and records
// the ack/loss outcome of each attempt.
type maxSender struct {
	maxCommitted uint64
	maxInflight  uint64
	maxAcked     uint64
	inflight     bool
}

// shouldUpdate reports whether a new advertisement is worth sending: the
// new limit would exceed the value currently in flight (maxInflight) by at
// least minDelta, given the receiver has now consumed
// currentConsumed bytes and the window size is `window`.
func (m *maxSender) shouldUpdate(currentConsumed, window, minDelta uint64) bool {
	newLimit := currentConsumed + window
	if newLimit < m.maxInflight {
		return false
	}
	return newLimit-m.maxInflight >= minDelta
}

// record notes that `limit` has just been committed to an outgoing packet.
func (m *maxSender) record(limit uint64) {
	m.maxCommitted = limit
	m.maxInflight = limit
	m.inflight = true
}

// acked notes that the peer confirmed receipt of the advertisement of
// `limit`.
func (m *maxSender) acked(limit uint64) {
	if limit > m.maxAcked {
		m.maxAcked = limit
	}
	if limit == m.maxInflight {
		m.inflight = false
	}
}

// lost notes that the packet carrying `limit` was declared lost; the
// advertisement needs to be resent unless a later one already supersedes
// it. maxInflight rolls back to the last value the peer is actually known
// to have (maxAcked), otherwise shouldUpdate would stay permanently false
// for a lost advertisement until independent window growth happened to
// cross the stale maxInflight threshold again.
func (m *maxSender) lost(limit uint64) {
	if limit == m.maxInflight {
		m.inflight = false
		m.maxInflight = m.maxAcked
	}
}
