package model

import (
	"fmt"
	"strings"
)

// Limits accepted for a scan request.
const (
	MaxScanDepth = 1000
	MaxScanFiles = 10_000_000
)

var defaultPorts = map[Protocol]int{
	ProtocolSFTP: 22,
	ProtocolSCP:  22,
	ProtocolFTP:  21,
	ProtocolFTPS: 21,
}

// Normalize fills in the default port for the protocol when none is set.
func (c *ConnectionConfig) Normalize() {
	if c.Port == 0 {
		c.Port = defaultPorts[c.Protocol]
	}
	if c.RootPath == "" {
		c.RootPath = "/"
	}
}

// Validate rejects malformed configs before any network I/O happens.
func (c ConnectionConfig) Validate() error {
	switch c.Protocol {
	case ProtocolSFTP, ProtocolFTP, ProtocolFTPS, ProtocolSCP:
	default:
		return fmt.Errorf("%s: unknown protocol %q", ErrKindValidation, c.Protocol)
	}
	if c.Host == "" {
		return fmt.Errorf("%s: host is required", ErrKindValidation)
	}
	if strings.ContainsAny(c.Host, " /\\") {
		return fmt.Errorf("%s: invalid host %q", ErrKindValidation, c.Host)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%s: port %d out of range", ErrKindValidation, c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("%s: username is required", ErrKindValidation)
	}
	if c.Password == "" && c.KeyPath == "" {
		return fmt.Errorf("%s: password or key_path is required", ErrKindValidation)
	}
	if err := ValidatePath(c.RootPath); err != nil {
		return err
	}
	return nil
}

// ValidatePath rejects traversal attempts and control characters.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%s: path is required", ErrKindValidation)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%s: path traversal in %q", ErrKindValidation, p)
		}
	}
	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%s: control character in path", ErrKindValidation)
		}
	}
	return nil
}

// Validate checks that the limits are inside the accepted ranges.
// Zero values mean "use the default" and are filled in here.
func (l *ScanLimits) Validate() error {
	if l.MaxDepth == 0 {
		l.MaxDepth = 20
	}
	if l.MaxFiles == 0 {
		l.MaxFiles = 100_000
	}
	if l.MaxDepth < 0 || l.MaxDepth > MaxScanDepth {
		return fmt.Errorf("%s: max_depth %d out of range [1,%d]", ErrKindValidation, l.MaxDepth, MaxScanDepth)
	}
	if l.MaxFiles < 0 || l.MaxFiles > MaxScanFiles {
		return fmt.Errorf("%s: max_files %d out of range [1,%d]", ErrKindValidation, l.MaxFiles, MaxScanFiles)
	}
	return nil
}
