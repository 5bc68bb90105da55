package utils

import (
	"fmt"
	"net"
	"strconv"
)

// VerifyPortAvailable fails if host:port cannot be bound.
func VerifyPortAvailable(host string, port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid port number %q", port)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(portNum)))
	if err != nil {
		return fmt.Errorf("port %s is not available: %w", port, err)
	}
	if closeErr := ln.Close(); closeErr != nil {
		return fmt.Errorf("failed to close listener: %w", closeErr)
	}
	return nil
}
