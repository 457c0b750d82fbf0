package telemetry

import (
	"bytes"
	"fmt"
	"io"
	"net"
)

// udpPort turns datagrams into lines: each datagram is one message.
type udpPort struct {
	conn net.PacketConn
	buf  bytes.Buffer
	pkt  []byte
}

func (p *udpPort) Read(b []byte) (int, error) {
	for p.buf.Len() == 0 {
		n, _, err := p.conn.ReadFrom(p.pkt)
		if err != nil {
			return 0, err
		}
		msg := bytes.TrimRight(p.pkt[:n], "\r\n")
		if len(msg) == 0 {
			continue
		}
		p.buf.Write(msg)
		p.buf.WriteByte('\n')
	}
	return p.buf.Read(b)
}

func (p *udpPort) Close() error { return p.conn.Close() }

// Addr returns the bound local address.
func (p *udpPort) Addr() net.Addr { return p.conn.LocalAddr() }

// ListenUDP binds addr and treats each received datagram as one line.
func ListenUDP(addr string, bufSize int) (*Mux[io.ReadCloser], net.Addr, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	port := &udpPort{conn: conn, pkt: make([]byte, 65535)}
	return NewMux[io.ReadCloser]("udp:"+conn.LocalAddr().String(), port, bufSize), conn.LocalAddr(), nil
}
