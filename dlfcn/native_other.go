//go:build !linux || !cgo

package dlfcn

// Native returns the C library's own loader. Without cgo on linux there is
// no way to reach it, so every call fails with ErrUnsupported.
func Native() Table {
	return unsupportedTable{}
}
