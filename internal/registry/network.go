package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Network identifies one registry slot.
type Network uint8

const (
	Dolphin Network = iota
	Calamari
	Manta
)

// NumberOfNetworks is the number of registry slots.
const NumberOfNetworks = 3

var networkNames = [NumberOfNetworks]string{"dolphin", "calamari", "manta"}

// ErrUnknownNetwork is returned when parsing a name that is not a network.
var ErrUnknownNetwork = errors.New("registry: unknown network")

// Networks returns every network in slot order.
func Networks() []Network {
	return []Network{Dolphin, Calamari, Manta}
}

// ParseNetwork parses a network name, ignoring case.
func ParseNetwork(s string) (Network, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range networkNames {
		if n == name {
			return Network(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
}

func (n Network) valid() bool { return int(n) < NumberOfNetworks }

func (n Network) String() string {
	if !n.valid() {
		return fmt.Sprintf("network(%d)", uint8(n))
	}
	return networkNames[n]
}

func (n Network) MarshalText() ([]byte, error) {
	if !n.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNetwork, uint8(n))
	}
	return []byte(networkNames[n]), nil
}

func (n *Network) UnmarshalText(text []byte) error {
	parsed, err := ParseNetwork(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
