package transport

import "time"

// LineReader reads one newline-terminated protocol line, waiting up to
// timeout for it to complete. A nil line with nil error means the timeout
// elapsed: the protocol's "no reply" signal.
type LineReader interface {
	ReadLine(timeout time.Duration) ([]byte, error)
}

// LineDrainer returns the complete lines currently buffered without
// waiting for more input than one read quantum.
type LineDrainer interface {
	Drain() ([][]byte, error)
}

// LineWriter transmits one pre-encoded frame.
type LineWriter interface {
	Write(p []byte) (int, error)
}

// LineSink is a generic transmission target for encoded lines.
type LineSink interface {
	SendLine(line []byte) error
}

// LineConn is the full-duplex transport one conversation owns exclusively:
// bounded reads, buffered drain, frame writes and release. Command
// conversations acquire one per call; a discovery session holds one for its
// whole lifetime.
type LineConn interface {
	LineReader
	LineDrainer
	LineWriter
	Close() error
}

// Compile-time assertion that AsyncTx is a LineSink.
var _ LineSink = (*AsyncTx)(nil)
