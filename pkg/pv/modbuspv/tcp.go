package modbuspv

import (
	"time"

	"github.com/goburrow/modbus"
)

// TCPConfig is the transport configuration for a Modbus TCP unit.
type TCPConfig struct {
	// Endpoint is the host:port of the unit.
	Endpoint string
	// UnitID is the Modbus slave id.
	UnitID byte
	// Timeout bounds each request. Zero defaults to three seconds.
	Timeout time.Duration
}

// tcpClient couples the goburrow client with its handler so Close can
// reach the connection.
type tcpClient struct {
	modbus.Client
	handler *modbus.TCPClientHandler
}

// NewTCP creates a provider polling a Modbus TCP unit. The connection is
// established lazily on the first request, and the poll loop's up/down
// tracking absorbs transport failures.
func NewTCP(cfg TCPConfig, opts Options) (*Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	handler := modbus.NewTCPClientHandler(cfg.Endpoint)
	handler.Timeout = timeout
	handler.SlaveId = cfg.UnitID
	client := tcpClient{Client: modbus.NewClient(handler), handler: handler}
	p := New(client, opts)
	p.mu.Lock()
	p.transport = handler
	p.mu.Unlock()
	return p, nil
}
