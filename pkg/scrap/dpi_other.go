//go:build !windows

package scrap

// MakeDPIAware is a no-op outside Windows, where sizes are never scaled.
func MakeDPIAware() error { return nil }
