//go:build !linux

package storage

// detectFilesystemType reports an unknown type where statfs magic numbers are
// not mapped; unknown types are treated as local.
func detectFilesystemType(path string) (string, error) {
	return "", nil
}
