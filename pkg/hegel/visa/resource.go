// Package visa provides the transport layer for instrument
// communication: VISA-style resource names, raw SCPI-over-TCP sockets,
// an in-memory simulated transport, and the cooperative locking that
// keeps concurrent readers from corrupting each other's exchanges.
package visa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Scheme identifies the transport family of a resource.
type Scheme string

// Supported resource schemes.
const (
	SchemeTCPIP Scheme = "TCPIP"
	SchemeSim   Scheme = "SIM"
)

// DefaultSCPIPort is the conventional raw-socket SCPI port.
const DefaultSCPIPort = 5025

// ErrBadResource is returned when a resource name cannot be parsed.
var ErrBadResource = errors.New("malformed resource name")

// Resource is a parsed VISA-style resource name.
//
// Supported forms:
//
//	TCPIP[board]::host::port::SOCKET   raw SCPI over TCP
//	TCPIP[board]::host::INSTR          raw SCPI over TCP, port 5025
//	SIM::model                         in-memory simulated instrument
type Resource struct {
	Scheme Scheme
	Board  int    // board index on TCPIP resources, usually 0
	Host   string // host for TCPIP, model name for SIM
	Port   int

	// Socket records that the resource was written in the explicit
	// port::SOCKET form, so String round-trips it even when the port
	// is the INSTR default.
	Socket bool
}

// ParseResource parses a VISA-style resource name.
func ParseResource(name string) (Resource, error) {
	parts := strings.Split(name, "::")
	if len(parts) < 2 {
		return Resource{}, fmt.Errorf("%w: %q", ErrBadResource, name)
	}

	head := strings.ToUpper(parts[0])
	switch {
	case head == string(SchemeSim):
		if len(parts) != 2 || parts[1] == "" {
			return Resource{}, fmt.Errorf("%w: %q", ErrBadResource, name)
		}
		return Resource{Scheme: SchemeSim, Host: parts[1]}, nil

	case strings.HasPrefix(head, string(SchemeTCPIP)):
		return parseTCPIP(name, head, parts)

	default:
		return Resource{}, fmt.Errorf("%w: unsupported scheme in %q", ErrBadResource, name)
	}
}

func parseTCPIP(name, head string, parts []string) (Resource, error) {
	board := 0
	if digits := strings.TrimPrefix(head, string(SchemeTCPIP)); digits != "" {
		b, err := strconv.Atoi(digits)
		if err != nil || b < 0 {
			return Resource{}, fmt.Errorf("%w: bad board in %q", ErrBadResource, name)
		}
		board = b
	}

	r := Resource{Scheme: SchemeTCPIP, Board: board}
	suffix := strings.ToUpper(parts[len(parts)-1])

	switch suffix {
	case "SOCKET":
		// TCPIP[n]::host::port::SOCKET
		if len(parts) != 4 {
			return Resource{}, fmt.Errorf("%w: %q", ErrBadResource, name)
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil || port <= 0 || port > 65535 {
			return Resource{}, fmt.Errorf("%w: bad port in %q", ErrBadResource, name)
		}
		r.Host = parts[1]
		r.Port = port
		r.Socket = true

	case "INSTR":
		// TCPIP[n]::host::INSTR
		if len(parts) != 3 {
			return Resource{}, fmt.Errorf("%w: %q", ErrBadResource, name)
		}
		r.Host = parts[1]
		r.Port = DefaultSCPIPort

	default:
		return Resource{}, fmt.Errorf("%w: %q", ErrBadResource, name)
	}

	if r.Host == "" {
		return Resource{}, fmt.Errorf("%w: empty host in %q", ErrBadResource, name)
	}
	return r, nil
}

// String reconstructs the resource name in the form it was written.
func (r Resource) String() string {
	switch r.Scheme {
	case SchemeSim:
		return fmt.Sprintf("SIM::%s", r.Host)
	case SchemeTCPIP:
		if r.Port == DefaultSCPIPort && !r.Socket {
			return fmt.Sprintf("TCPIP%d::%s::INSTR", r.Board, r.Host)
		}
		return fmt.Sprintf("TCPIP%d::%s::%d::SOCKET", r.Board, r.Host, r.Port)
	default:
		return ""
	}
}

// canonical folds equivalent spellings of the same endpoint into one
// name, so TCPIP0::host::5025::SOCKET and TCPIP0::host::INSTR agree.
func (r Resource) canonical() string {
	r.Socket = r.Port != DefaultSCPIPort
	return r.String()
}

// LockName returns the resource name mangled into something safe to use
// as a lock file name. Two resource strings that address the same
// endpoint always yield the same lock name.
func (r Resource) LockName() string {
	s := r.canonical()
	s = strings.ReplaceAll(s, "::", "-")
	s = strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '-' || c == '.' || c == '_':
			return c
		default:
			return '_'
		}
	}, s)
	return s + ".lock"
}
