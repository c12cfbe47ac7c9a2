package transport

import "time"

// ackActionKind tags the kind of bookkeeping an in-flight frame needs once
// its packet is acked or declared lost. Using a tagged variant here, with
// the connection and stream identified explicitly by field, takes the
// place of the offset-into-struct trick the original implementation used
// to recover a stream pointer from inside a generic ack callback.
type ackActionKind int

const (
	actionStreamData ackActionKind = iota
	actionMaxStreamData
	actionMaxData
	actionStreamStateSender
)

// streamSenderKind distinguishes the two sender-state frames a stream can
// have in flight: STOP_SENDING and RST_STREAM.
type streamSenderKind int

const (
	senderStopSending streamSenderKind = iota
	senderRstStream
)

// ackAction is one piece of bookkeeping to run when the packet carrying it
// is acked (Connection.applyAck) or lost (Connection.applyLoss). Only the fields relevant
// to Kind are populated.
type ackAction struct {
	kind     ackActionKind
	streamID uint32

	start uint64 // actionStreamData: range start
	end   uint64 // actionStreamData: range end

	limit uint64 // actionMaxStreamData / actionMaxData

	senderKind streamSenderKind // actionStreamStateSender
}

// ackEntry is everything in flight for one packet number.
type ackEntry struct {
	packetNumber uint64
	sentAt       time.Time
	actions      []ackAction
}

// ackBook is the ordered store of in-flight send actions, indexed by
// packet number. Entries are appended in increasing packet-number (and
// therefore increasing send-time) order and released from the head,
// whether by ack or by RTO-driven loss detection, so a plain slice used
// as a queue needs no secondary index.
type ackBook struct {
	entries []*ackEntry
}

// allocate opens a new entry for a packet about to be sent. The caller
// appends ackActions to the returned entry before handing the packet to
// the network.
func (b *ackBook) allocate(pn uint64, sentAt time.Time) *ackEntry {
	e := &ackEntry{packetNumber: pn, sentAt: sentAt}
	b.entries = append(b.entries, e)
	return e
}

func (e *ackEntry) record(a ackAction) {
	e.actions = append(e.actions, a)
}

// release removes and returns the entry for packetNumber, if present.
// Used for both ack and explicit-loss processing; the caller decides
// which callback (acked vs lost) to run over the returned actions.
func (b *ackBook) release(pn uint64) (*ackEntry, bool) {
	for i, e := range b.entries {
		if e.packetNumber == pn {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return e, true
		}
		if e.packetNumber > pn {
			break
		}
	}
	return nil, false
}

// expired returns (and removes) every entry sent at or before `now - rto`,
// oldest first: a fixed-RTO loss sweep, no congestion control.
func (b *ackBook) expired(now time.Time, rto time.Duration) []*ackEntry {
	cutoff := now.Add(-rto)
	i := 0
	for i < len(b.entries) && !b.entries[i].sentAt.After(cutoff) {
		i++
	}
	if i == 0 {
		return nil
	}
	lost := b.entries[:i]
	b.entries = b.entries[i:]
	return lost
}

// empty reports whether any packet is currently in flight.
func (b *ackBook) empty() bool {
	return len(b.entries) == 0
}

// oldest returns the earliest in-flight entry's send time, used to
// schedule the next RTO timeout.
func (b *ackBook) oldest() (time.Time, bool) {
	if len(b.entries) == 0 {
		return time.Time{}, false
	}
	return b.entries[0].sentAt, true
}
