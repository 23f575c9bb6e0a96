package services

import (
	"fmt"
	"math/rand"
	"net"
)

const (
	ephemeralPortStart = 49152
	ephemeralPortEnd   = 65535
	maxPortAttempts    = 100
)

// PortAllocator hands out free host ports from the ephemeral range for the
// proxy to target. A candidate counts as free when a listen test on it
// succeeds.
type PortAllocator struct {
	listen func(network, addr string) (net.Listener, error)
}

func NewPortAllocator() *PortAllocator {
	return &PortAllocator{listen: net.Listen}
}

// Allocate returns a currently-unused port. The search is bounded; when
// every attempt lands on a busy port the allocation fails rather than
// spinning.
func (a *PortAllocator) Allocate() (int, error) {
	for i := 0; i < maxPortAttempts; i++ {
		port := ephemeralPortStart + rand.Intn(ephemeralPortEnd-ephemeralPortStart+1)
		l, err := a.listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %d-%d after %d attempts", ephemeralPortStart, ephemeralPortEnd, maxPortAttempts)
}
