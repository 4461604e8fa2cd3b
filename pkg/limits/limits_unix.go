// Copyright (c) 2025 The FileZap developers

//go:build !windows

package limits

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultMaxFileDescriptors is the soft limit requested for open files. Every
// inbound and outbound protocol exchange holds one socket.
const DefaultMaxFileDescriptors = 16384

// SetLimits raises the open file soft limit towards
// DefaultMaxFileDescriptors, capped by the hard limit. A soft limit already
// above the target is left alone.
func SetLimits() error {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return fmt.Errorf("failed to read file descriptor limit: %w", err)
	}
	if rLimit.Cur >= DefaultMaxFileDescriptors {
		return nil
	}

	rLimit.Cur = DefaultMaxFileDescriptors
	if rLimit.Max < DefaultMaxFileDescriptors {
		rLimit.Cur = rLimit.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return fmt.Errorf("failed to set file descriptor limit: %w", err)
	}
	return nil
}

// FileDescriptorLimit returns the current and maximum file descriptor limits
func FileDescriptorLimit() (uint64, uint64, error) {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, 0, err
	}
	return uint64(rLimit.Cur), uint64(rLimit.Max), nil
}
