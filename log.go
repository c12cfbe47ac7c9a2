package quic

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bhesmans/quince/transport"
)

// connLogger attaches a transport.Connection's qlog-style event stream to
// a logrus.Entry carrying that connection's address and id, the way the
// teacher's transactionLogger carried a formatted prefix instead.
type connLogger struct {
	entry *logrus.Entry
}

func newConnLogger(base *logrus.Logger, addr fmt.Stringer, connectionID uint64) *connLogger {
	return &connLogger{
		entry: base.WithFields(logrus.Fields{
			"addr": addr.String(),
			"cid":  fmt.Sprintf("%x", connectionID),
		}),
	}
}

// attach wires this logger into c so every packet/frame event it emits is
// logged at debug level.
func (l *connLogger) attach(c *Conn) {
	if !l.entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	c.transportConn.OnLogEvent(l.logEvent)
}

func (l *connLogger) detach(c *Conn) {
	c.transportConn.OnLogEvent(nil)
}

func (l *connLogger) logEvent(e transport.LogEvent) {
	fields := make(logrus.Fields, len(e.Fields))
	for _, f := range e.Fields {
		if f.Str != "" {
			fields[f.Key] = f.Str
		} else {
			fields[f.Key] = f.Num
		}
	}
	l.entry.WithFields(fields).WithTime(e.Time).Debug(e.Type)
}
