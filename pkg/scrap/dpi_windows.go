//go:build windows

package scrap

import (
	"errors"
	"syscall"
)

var (
	user32                 = syscall.NewLazyDLL("user32.dll")
	procSetProcessDPIAware = user32.NewProc("SetProcessDPIAware")
)

// MakeDPIAware marks the process DPI aware, so display and capturer sizes
// report the full resolution instead of the scaled one. Call it before
// opening any display.
func MakeDPIAware() error {
	if err := procSetProcessDPIAware.Find(); err != nil {
		return err
	}
	if ret, _, _ := procSetProcessDPIAware.Call(); ret == 0 {
		return errors.New("failed setting DPI aware")
	}
	return nil
}
