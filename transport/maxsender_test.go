package transport

import "testing"

func TestMaxSenderShouldUpdate(t *testing.T) {
	var m maxSender
	// Nothing committed yet: any positive window clears the threshold.
	if !m.shouldUpdate(0, 1024, 1) {
		t.Fatal("expected an update to be due before anything is committed")
	}
	m.record(1024)
	if m.shouldUpdate(0, 1024, 512) {
		t.Fatal("should not suggest updating again immediately after committing")
	}
	if !m.shouldUpdate(600, 1024, 512) {
		t.Fatal("expected update once consumption narrows the window by minDelta")
	}
}

func TestMaxSenderAckedClearsInflight(t *testing.T) {
	var m maxSender
	m.record(2048)
	if !m.inflight {
		t.Fatal("expected inflight after record")
	}
	m.acked(2048)
	if m.inflight {
		t.Fatal("expected inflight cleared after ack")
	}
	if m.maxAcked != 2048 {
		t.Fatalf("expected maxAcked=2048, got %d", m.maxAcked)
	}
}

func TestMaxSenderLostClearsInflight(t *testing.T) {
	var m maxSender
	m.record(512)
	m.lost(512)
	if m.inflight {
		t.Fatal("expected inflight cleared after loss")
	}
}

func TestMaxSenderLostRollsBackInflightForRetry(t *testing.T) {
	var m maxSender
	m.record(1024)
	m.lost(1024)
	// maxAcked is still 0 (nothing was ever acked), so the threshold check
	// must use that, not the lost value, or shouldUpdate would stay false
	// until the window grew past 1024 again.
	if !m.shouldUpdate(0, 1024, 512) {
		t.Fatal("expected shouldUpdate to recover once the stale advertisement is lost")
	}
}

func TestMaxSenderLostAfterPriorAckRollsBackToAcked(t *testing.T) {
	var m maxSender
	m.record(512)
	m.acked(512)
	m.record(1024)
	m.lost(1024)
	if m.maxInflight != 512 {
		t.Fatalf("expected maxInflight to roll back to the last acked value 512, got %d", m.maxInflight)
	}
}
