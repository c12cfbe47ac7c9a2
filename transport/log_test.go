package transport

import (
	"testing"
	"time"
)

func TestLogFramePadding(t *testing.T) {
	testLogFrame(t, paddingFrame{}, "frame_type=padding")
}

func TestLogFrameAck(t *testing.T) {
	f := ackFrame{
		largestAck:    1,
		ackDelay:      2,
		firstBlockLen: 3,
	}
	testLogFrame(t, f, "frame_type=ack largest_ack=1 ack_delay=2 first_block_len=3 block_count=0")
}

func TestLogFrameResetStream(t *testing.T) {
	f := rstStreamFrame{streamID: 1, errorCode: 2, finalOffset: 3}
	testLogFrame(t, f, "frame_type=reset_stream stream_id=1 error_code=2 final_offset=3")
}

func TestLogFrameStopSending(t *testing.T) {
	f := stopSendingFrame{streamID: 1, errorCode: 2}
	testLogFrame(t, f, "frame_type=stop_sending stream_id=1 error_code=2")
}

func TestLogFrameStream(t *testing.T) {
	f := streamFrame{streamID: 2, offset: 3, fin: true, data: make([]byte, 4)}
	testLogFrame(t, f, "frame_type=stream stream_id=2 offset=3 length=4 fin=true")
}

func TestLogFrameMaxData(t *testing.T) {
	f := maxDataFrame{maximumDataKB: 1}
	testLogFrame(t, f, "frame_type=max_data maximum_kb=1")
}

func TestLogFrameMaxStreamData(t *testing.T) {
	f := maxStreamDataFrame{streamID: 1, maximumStreamData: 2}
	testLogFrame(t, f, "frame_type=max_stream_data stream_id=1 maximum=2")
}

func testLogFrame(t *testing.T, f interface{}, expect string) {
	tm := time.Date(2020, time.January, 5, 2, 3, 4, 5, time.UTC)
	e := newLogEventFrame(tm, logEventFramesProcessed, f)
	expect = "2020-01-05T02:03:04Z frames_processed " + expect
	actual := e.String()
	if expect != actual {
		t.Helper()
		t.Fatalf("\nexpect %v\nactual %v", expect, actual)
	}
}
