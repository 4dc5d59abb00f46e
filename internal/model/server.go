package model

import (
	"context"
	"net"
)

// SecurityLayer abstracts how the listening socket is created, so the
// command server does not care whether TLS sits in front of it.
type SecurityLayer interface {
	Listen(protocol, addr string) (net.Listener, error)
}

// Server is the lifecycle contract for the command server.
type Server interface {
	Start(securityLayer SecurityLayer) error
	Stop(ctx context.Context) error
	Address() string
}
