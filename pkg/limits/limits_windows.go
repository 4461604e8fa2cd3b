// Copyright (c) 2025 The FileZap developers

package limits

import "errors"

// SetLimits is a no-op on Windows
func SetLimits() error {
	return nil
}

// FileDescriptorLimit is not supported on Windows
func FileDescriptorLimit() (uint64, uint64, error) {
	return 0, 0, errors.New("not supported on Windows")
}
