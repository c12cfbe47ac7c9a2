package transport

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Supported log events.
// https://quiclog.github.io/internet-drafts/draft-marx-qlog-event-definitions-quic-h3.html
const (
	logEventPacketReceived  = "packet_received"
	logEventPacketSent      = "packet_sent"
	logEventPacketDropped   = "packet_dropped"
	logEventFramesProcessed = "frames_processed"
)

// LogEvent is one qlog-style entry emitted by a Connection.
type LogEvent struct {
	Time   time.Time
	Type   string
	Fields []LogField
}

func newLogEvent(tm time.Time, tp string) LogEvent {
	return LogEvent{
		Time:   tm,
		Type:   tp,
		Fields: make([]LogField, 0, 8),
	}
}

func (s *LogEvent) addField(k string, v interface{}) {
	s.Fields = append(s.Fields, newLogField(k, v))
}

func (s LogEvent) String() string {
	buf := bytes.Buffer{}
	buf.WriteString(s.Time.Format(time.RFC3339))
	buf.WriteString(" ")
	buf.WriteString(s.Type)
	for _, f := range s.Fields {
		buf.WriteString(" ")
		buf.WriteString(f.String())
	}
	return buf.String()
}

// LogField is a single key/value pair, either numeric or string-valued.
type LogField struct {
	Key string
	Str string
	Num uint64
}

func newLogField(key string, val interface{}) LogField {
	s := LogField{Key: key}
	switch val := val.(type) {
	case int:
		s.Num = uint64(val)
	case int8:
		s.Num = uint64(val)
	case int16:
		s.Num = uint64(val)
	case int32:
		s.Num = uint64(val)
	case int64:
		s.Num = uint64(val)
	case uint:
		s.Num = uint64(val)
	case uint8:
		s.Num = uint64(val)
	case uint16:
		s.Num = uint64(val)
	case uint32:
		s.Num = uint64(val)
	case uint64:
		s.Num = val
	case bool:
		s.Str = strconv.FormatBool(val)
	case string:
		s.Str = val
	case []byte:
		s.Str = hex.EncodeToString(val)
	default:
		panic("unsupported type for log field")
	}
	return s
}

func (s LogField) String() string {
	if s.Str == "" {
		return fmt.Sprintf("%s=%d", s.Key, s.Num)
	}
	return fmt.Sprintf("%s=%s", s.Key, s.Str)
}

// Log packets.

func newLogEventPacket(tm time.Time, tp string, h packetHeader, payloadLen int) LogEvent {
	e := newLogEvent(tm, tp)
	logPacketHeader(&e, h, payloadLen)
	return e
}

func logPacketHeader(e *LogEvent, h packetHeader, payloadLen int) {
	e.addField("packet_type", packetTypeName(h.typ))
	if h.version > 0 {
		e.addField("version", h.version)
	}
	e.addField("connection_id", h.connectionID)
	e.addField("packet_number", h.packetNumber)
	if payloadLen > 0 {
		e.addField("payload_length", payloadLen)
	}
}

func packetTypeName(typ uint8) string {
	switch typ {
	case packetTypeClientInitial:
		return "client_initial"
	case packetTypeServerCleartext:
		return "server_cleartext"
	case packetTypeClientCleartext:
		return "client_cleartext"
	case packetType1RTTKeyPhase0:
		return "1rtt_key_phase_0"
	case packetType1RTTKeyPhase1:
		return "1rtt_key_phase_1"
	case packetTypeVersionNegotiation:
		return "version_negotiation"
	case packetTypeServerStatelessRetry:
		return "server_stateless_retry"
	case packetType0RTTProtected:
		return "0rtt_protected"
	default:
		return "unknown"
	}
}

// Log frames.

func newLogEventFrame(tm time.Time, tp string, f interface{}) LogEvent {
	e := newLogEvent(tm, tp)
	switch f := f.(type) {
	case paddingFrame:
		logFramePadding(&e, f)
	case ackFrame:
		logFrameAck(&e, f)
	case rstStreamFrame:
		logFrameRstStream(&e, f)
	case stopSendingFrame:
		logFrameStopSending(&e, f)
	case streamFrame:
		logFrameStream(&e, f)
	case maxDataFrame:
		logFrameMaxData(&e, f)
	case maxStreamDataFrame:
		logFrameMaxStreamData(&e, f)
	}
	return e
}

func logFramePadding(e *LogEvent, s paddingFrame) {
	e.addField("frame_type", "padding")
}

func logFrameAck(e *LogEvent, s ackFrame) {
	e.addField("frame_type", "ack")
	e.addField("largest_ack", s.largestAck)
	e.addField("ack_delay", s.ackDelay)
	e.addField("first_block_len", s.firstBlockLen)
	e.addField("block_count", len(s.blocks))
}

func logFrameRstStream(e *LogEvent, s rstStreamFrame) {
	e.addField("frame_type", "reset_stream")
	e.addField("stream_id", s.streamID)
	e.addField("error_code", s.errorCode)
	e.addField("final_offset", s.finalOffset)
}

func logFrameStopSending(e *LogEvent, s stopSendingFrame) {
	e.addField("frame_type", "stop_sending")
	e.addField("stream_id", s.streamID)
	e.addField("error_code", s.errorCode)
}

func logFrameStream(e *LogEvent, s streamFrame) {
	e.addField("frame_type", "stream")
	e.addField("stream_id", s.streamID)
	e.addField("offset", s.offset)
	e.addField("length", len(s.data))
	e.addField("fin", s.fin)
}

func logFrameMaxData(e *LogEvent, s maxDataFrame) {
	e.addField("frame_type", "max_data")
	e.addField("maximum_kb", s.maximumDataKB)
}

func logFrameMaxStreamData(e *LogEvent, s maxStreamDataFrame) {
	e.addField("frame_type", "max_stream_data")
	e.addField("stream_id", s.streamID)
	e.addField("maximum", s.maximumStreamData)
}

func logUnknownFrame(e *LogEvent, frameType uint8, b []byte) {
	e.addField("frame_type", "unknown")
	e.addField("raw_frame_type", frameType)
	e.addField("raw", b)
}
