//go:build linux

package ioshim

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/swrouter/swrouter/pkg/common"
)

// RawSocket sends and receives Ethernet frames on a fixed set of interfaces
// using one AF_PACKET/SOCK_RAW socket per interface. Opening it requires
// CAP_NET_RAW (root, in practice).
type RawSocket struct {
	byName map[string]*boundSocket
	rx     chan rxFrame
	errc   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

type boundSocket struct {
	fd      int
	ifIndex int
}

type rxFrame struct {
	iface string
	frame []byte
}

// OpenRawSocket binds one AF_PACKET socket per named interface.
func OpenRawSocket(ifaceNames []string) (*RawSocket, error) {
	rs := &RawSocket{
		byName: make(map[string]*boundSocket, len(ifaceNames)),
		rx:     make(chan rxFrame, 64),
		errc:   make(chan error, len(ifaceNames)),
		closed: make(chan struct{}),
	}

	ok := false
	defer func() {
		if !ok {
			rs.Close()
		}
	}()

	for _, name := range ifaceNames {
		bs, err := bindInterface(name)
		if err != nil {
			return nil, fmt.Errorf("ioshim: bind %s: %w", name, err)
		}
		rs.byName[name] = bs
		go rs.readLoop(name, bs)
	}

	ok = true
	return rs, nil
}

func bindInterface(name string) (*boundSocket, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup interface: %w", err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("open raw socket: %w (CAP_NET_RAW required)", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind to interface: %w", err)
	}

	return &boundSocket{fd: fd, ifIndex: iface.Index}, nil
}

// readLoop owns one socket and feeds every received frame to the shared rx
// channel, tagged with the interface name it arrived on.
func (rs *RawSocket) readLoop(name string, bs *boundSocket) {
	buf := common.MediumBufferPool.Get()
	defer common.MediumBufferPool.Put(buf)

	for {
		n, _, err := unix.Recvfrom(bs.fd, buf, 0)
		select {
		case <-rs.closed:
			return
		default:
		}
		if err != nil {
			select {
			case rs.errc <- fmt.Errorf("ioshim: recv on %s: %w", name, err):
			case <-rs.closed:
			}
			return
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		select {
		case rs.rx <- rxFrame{iface: name, frame: frame}:
		case <-rs.closed:
			return
		}
	}
}

// Send transmits frame verbatim on iface.
func (rs *RawSocket) Send(iface string, frame []byte) error {
	bs, ok := rs.byName[iface]
	if !ok {
		return fmt.Errorf("ioshim: unknown interface %q", iface)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  bs.ifIndex,
		Halen:    6,
	}
	copy(addr.Addr[:], frame[0:6])

	if err := unix.Sendto(bs.fd, frame, 0, &addr); err != nil {
		return fmt.Errorf("ioshim: send on %s: %w", iface, err)
	}
	return nil
}

// Receive blocks until a frame arrives on any bound interface.
func (rs *RawSocket) Receive() (string, []byte, error) {
	select {
	case f := <-rs.rx:
		return f.iface, f.frame, nil
	case err := <-rs.errc:
		return "", nil, err
	case <-rs.closed:
		return "", nil, fmt.Errorf("ioshim: raw socket closed")
	}
}

// Close releases every bound socket and unblocks Receive.
func (rs *RawSocket) Close() error {
	var firstErr error
	rs.closeOnce.Do(func() {
		close(rs.closed)
		for name, bs := range rs.byName {
			if err := unix.Close(bs.fd); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("ioshim: close %s: %w", name, err)
			}
		}
	})
	return firstErr
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
