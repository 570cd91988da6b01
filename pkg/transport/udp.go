package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

const maxDatagram = 64 << 10

type datagramReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// readBackoff paces the reader after socket errors so a broken socket
// does not spin.
func readBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// UDPEndpoint is an Endpoint on a real socket. A reader goroutine fills a
// bounded channel; datagrams arriving while it is full are dropped.
type UDPEndpoint struct {
	conn  *net.UDPConn
	addr  address.Address
	inbox chan []byte
	log   *zap.Logger
	retry backoff.BackOff
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ListenUDP binds addr. Port 0 picks a free port; Addr reports the result.
func ListenUDP(addr address.Address, queueSize int, log *zap.Logger) (*UDPEndpoint, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := net.ListenUDP("udp4", addr.UDPAddr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr.UDPAddr(), err)
	}
	bound, err := address.FromUDPAddr(conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	e := &UDPEndpoint{
		conn:  conn,
		addr:  bound,
		inbox: make(chan []byte, queueSize),
		log:   log.With(zap.Stringer("udp", bound)),
		retry: readBackoff(),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.readLoop(conn)
	return e, nil
}

func (e *UDPEndpoint) readLoop(r datagramReader) {
	defer e.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			delay := e.retry.NextBackOff()
			e.log.Warn("read failed", zap.Duration("retry_in", delay), zap.Error(err))
			select {
			case <-e.done:
				return
			case <-time.After(delay):
			}
			continue
		}
		e.retry.Reset()
		select {
		case e.inbox <- append([]byte(nil), buf[:n]...):
		default:
			e.log.Debug("inbound queue full, dropping", zap.Stringer("from", from))
		}
	}
}

func (e *UDPEndpoint) Addr() address.Address { return e.addr }

func (e *UDPEndpoint) Send(to address.Address, payload []byte) error {
	if _, err := e.conn.WriteToUDP(payload, to.UDPAddr()); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

func (e *UDPEndpoint) Drain() [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-e.inbox:
			out = append(out, b)
		default:
			return out
		}
	}
}

func (e *UDPEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.conn.Close()
		e.wg.Wait()
	})
	return err
}
