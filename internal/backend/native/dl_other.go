//go:build (windows && !amd64) || (!windows && !cgo && !darwin)

package native

// Receiving the by-value result structs needs the cgo trampolines, purego on
// darwin, or the Windows x64 hidden return pointer. None is available here.
func loadABI(string) (abi, error) {
	return nil, ErrNotSupported
}
