//go:build !linux
// +build !linux

package storage

import "os"

func openSegmentFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
