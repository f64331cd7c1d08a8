// Package packetlog implements the optional raw-datagram trace file
// shared by the hub and the client link: one line per datagram sent or
// received, flushed immediately so the file is readable while the
// process is still running.
package packetlog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sync"
)

// Direction marks whether a logged datagram was sent or received.
type Direction string

const (
	Outbound Direction = "TX"
	Inbound  Direction = "RX"
)

// Logger appends one line per recorded datagram to a plain-text file, in
// the form "<direction>:<local_time_ms>:<peer_addr>:<hex_bytes>".
type Logger struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// Open creates (or appends to) the trace file at path.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("packetlog: open %q: %w", path, err)
	}
	return &Logger{f: f, w: bufio.NewWriter(f)}, nil
}

// Record appends one line describing a single datagram and flushes it to
// disk before returning, so a trace file is always readable up to the
// most recent record even if the process later crashes.
func (l *Logger) Record(dir Direction, localTimeMs uint32, peer *net.UDPAddr, datagram []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s:%d:%s:%s\n", dir, localTimeMs, peer.String(), hex.EncodeToString(datagram))
	if _, err := l.w.WriteString(line); err != nil {
		return fmt.Errorf("packetlog: write: %w", err)
	}
	return l.w.Flush()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return fmt.Errorf("packetlog: flush: %w", err)
	}
	return l.f.Close()
}
