// Package gate provides connectivity sources backing stagechain.ConnectivityGate.
package gate

import (
	"context"
	"net"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/goforbroke1006/stagechain"
)

// RedisPing reports connectivity while the Redis server answers PING.
type RedisPing struct {
	client  *backend.Client
	timeout time.Duration
}

var _ stagechain.ConnectivitySource = (*RedisPing)(nil)

func NewRedisPing(client *backend.Client, timeout time.Duration) *RedisPing {
	return &RedisPing{client: client, timeout: timeout}
}

func (p *RedisPing) ConnectivityAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.client.Ping(ctx).Err() == nil
}

// TCPDial reports connectivity while a TCP connection to Address can be opened.
type TCPDial struct {
	Address string
	Timeout time.Duration

	dial func(network, address string, timeout time.Duration) (net.Conn, error)
}

var _ stagechain.ConnectivitySource = (*TCPDial)(nil)

func NewTCPDial(address string, timeout time.Duration) *TCPDial {
	return &TCPDial{Address: address, Timeout: timeout, dial: net.DialTimeout}
}

func (d *TCPDial) ConnectivityAvailable() bool {
	conn, err := d.dial("tcp", d.Address, d.Timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
