// Package transport wraps a bound UDP socket with a receiver goroutine
// that dispatches inbound datagrams to an owner callback, and a sender
// goroutine that drains a FIFO outbound queue, woken either on demand or
// by a one-second timeout — the same receive-loop/wake-loop shape the
// hub and the client link both build on.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"skyrelay/internal/wire"
)

// Handler is invoked once per inbound datagram, from the receiver
// goroutine. It must not block for long: the next datagram is not read
// until it returns. The hub and client link decode and apply each
// datagram inline in this callback.
type Handler func(from *net.UDPAddr, datagram []byte)

type outboundDatagram struct {
	addr *net.UDPAddr
	data []byte
}

// Socket is a bound UDP endpoint with asynchronous send and receive.
type Socket struct {
	conn    *net.UDPConn
	handler Handler
	onFatal func(error)
	logger  *slog.Logger

	mu    sync.Mutex
	queue []outboundDatagram

	wake      chan struct{}
	stop      chan struct{}
	fatalOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds a UDP socket at laddr (e.g. ":7700" or "127.0.0.1:0") and
// starts its receive and send goroutines. handler is called for every
// datagram received. onFatal, if non-nil, is called at most once, from
// its own goroutine, the first time the receiver or sender goroutine
// hits an unrecoverable socket error; per TransportFatal's propagation
// policy that terminates the owning role, onFatal is expected to shut
// that role down. logger may be nil, in which case a disabled logger is
// used.
func Listen(laddr string, handler Handler, onFatal func(error), logger *slog.Logger) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", laddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", laddr, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	s := &Socket{
		conn:    conn,
		handler: handler,
		onFatal: onFatal,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}

	s.wg.Add(2)
	go s.receiveLoop()
	go s.sendLoop()
	return s, nil
}

// reportFatal logs and surfaces an unrecoverable socket error exactly
// once. It runs onFatal from a new goroutine so the failing send/receive
// loop can return immediately without risking a deadlock against a
// callback that calls back into Shutdown.
func (s *Socket) reportFatal(err error) {
	s.fatalOnce.Do(func() {
		s.logger.Error("transport: fatal error, terminating", "error", err)
		if s.onFatal != nil {
			go s.onFatal(err)
		}
	})
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Queue appends a datagram to the outbound FIFO. If sendNow is true, the
// sender goroutine is woken immediately rather than waiting for its next
// timed tick; otherwise the datagram waits for the next SendAll or timed
// flush, letting several queued datagrams go out as one wake-up.
func (s *Socket) Queue(addr *net.UDPAddr, datagram []byte, sendNow bool) {
	s.mu.Lock()
	s.queue = append(s.queue, outboundDatagram{addr: addr, data: datagram})
	s.mu.Unlock()

	if sendNow {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// SendAll flushes every currently-queued datagram synchronously. Callers
// that assemble a batch of outbound datagrams on their own tick (the hub
// building a WORLDSTATE fan-out, say) call this directly instead of
// waiting on the sender goroutine's next wake.
func (s *Socket) SendAll() {
	s.drainQueue()
}

// drainQueue flushes every currently-queued datagram and reports
// whether the queue was fully flushed. A WriteToUDP failure is fatal to
// the sender, matching sockcomms.cpp's AsyncSender/SendQueued, which
// break their loop and close the socket on any send failure rather than
// skip the one datagram and keep going: it reports the error upward and
// stops draining.
func (s *Socket) drainQueue() bool {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, d := range pending {
		if _, err := s.conn.WriteToUDP(d.data, d.addr); err != nil {
			s.reportFatal(fmt.Errorf("transport: send to %s: %w", d.addr, err))
			return false
		}
	}
	return true
}

// sendLoop is woken either by Queue(sendNow=true) or by a one-second
// timeout, whichever comes first, and flushes the queue each time —
// the condvar-with-timeout pattern expressed as a channel select. It
// terminates itself on the first unrecoverable send error.
func (s *Socket) sendLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-timer.C:
		}

		if !s.drainQueue() {
			return
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Second)
	}
}

// receiveLoop terminates itself on the first unrecoverable receive
// error, matching sockcomms.cpp's AsyncReceiver/WaitReceive, which treat
// any non-timeout recv failure as fatal rather than retrying forever.
func (s *Socket) receiveLoop() {
	defer s.wg.Done()

	buf := make([]byte, wire.MaxDatagramLen)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			select {
			case <-s.stop:
				return
			default:
			}
			s.reportFatal(fmt.Errorf("transport: receive: %w", err))
			return
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		s.handler(addr, datagram)
	}
}

// Shutdown stops both goroutines and closes the underlying socket. It
// blocks until both goroutines have exited.
func (s *Socket) Shutdown() error {
	close(s.stop)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}
