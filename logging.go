package quicmux

import "github.com/sirupsen/logrus"

// logType mirrors the teacher's logType constants (connection.go), used to
// tag log lines by subsystem so a deployment can turn a subsystem's
// verbosity up or down independently.
type logType string

const (
	logTypeStream       logType = "stream"
	logTypeFlowControl  logType = "flowcontrol"
	logTypeScheduler    logType = "scheduler"
	logTypeDatagram     logType = "datagram"
	logTypeConn         logType = "conn"
	logTypeTrace        logType = "trace"
)

// loggingFunction is kept with the teacher's shape (a variadic printf-style
// func) so stream code calls s.log(logTypeStream, "...", args...) exactly
// as it does in the teacher's stream.go, but the implementation now backs
// onto logrus's structured fields instead of a bespoke writer.
type loggingFunction func(t logType, format string, args ...interface{})

// newLogger builds a loggingFunction bound to a logrus entry, the way the
// teacher's newStreamLogger binds a per-stream prefix.
func newLogger(entry *logrus.Entry) loggingFunction {
	return func(t logType, format string, args ...interface{}) {
		entry.WithField("subsystem", string(t)).Debugf(format, args...)
	}
}

// newStreamLogger adds stream-identifying fields on top of a parent
// logger, mirroring the teacher's newStreamLogger(id, dir, parent).
func newStreamLogger(parent *logrus.Entry, id StreamId, dir string) loggingFunction {
	return newLogger(parent.WithField("stream", uint64(id)).WithField("dir", dir))
}

// nullLogger discards everything; useful for unit tests that construct
// stream state machines directly without a connection.
func nullLogger() loggingFunction {
	return func(logType, string, ...interface{}) {}
}
