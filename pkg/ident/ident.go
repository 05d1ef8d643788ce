// Package ident resolves the device identity the agent reports to the
// command endpoint. The identity is an opaque string, resolved exactly once
// at startup and immutable for the process lifetime.
package ident

import (
	"encoding/hex"
	"errors"
	"hash"
	"net"
	"os"
	"sort"
	"strings"
)

var ErrNoIdentity = errors.New("no device identity could be resolved")

// DeviceID is the opaque identifier sent as the deviceId query parameter.
type DeviceID string

func (d DeviceID) String() string { return string(d) }

// Resolve picks the device identity: an explicit value wins, otherwise the
// host's network name. An explicit value is whatever configuration provided,
// trimmed; it is never validated beyond being non-empty.
func Resolve(explicit string) (DeviceID, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return DeviceID(v), nil
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "", ErrNoIdentity
	}
	return DeviceID(hostname), nil
}

// FromMac derives a stable identity by hashing the host's MAC addresses.
// Useful on devices with generic or duplicated hostnames; the agent only
// uses it when configuration asks for it.
func FromMac(hasher hash.Hash) (DeviceID, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	// Sort MAC addresses so the hash is independent of enumeration order.
	var macs []string
	for _, intf := range interfaces {
		if addr := intf.HardwareAddr.String(); addr != "" {
			macs = append(macs, addr)
		}
	}
	if len(macs) == 0 {
		return "", ErrNoIdentity
	}
	sort.Strings(macs)

	hasher.Reset()
	hasher.Write([]byte(strings.Join(macs, "")))
	return DeviceID(hex.EncodeToString(hasher.Sum(nil))), nil
}
