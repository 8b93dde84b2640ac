package exchange

import (
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// Listen opens the listener selected by cfg.Network.
func Listen(cfg Config) (net.Listener, error) {
	switch cfg.Network {
	case "vsock":
		listener, err := vsock.Listen(cfg.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on vsock port %d: %w", cfg.VsockPort, err)
		}
		return listener, nil
	case "tcp", "":
		listener, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
		}
		return listener, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", cfg.Network)
	}
}
