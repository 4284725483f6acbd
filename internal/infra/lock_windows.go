//go:build windows

package infra

import (
	"os"

	"github.com/pkg/errors"
)

// lockFile opens path for the lifetime of the caller. Windows has no
// flock; the rename in atomicWrite keeps readers consistent.
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open lock file")
	}
	return func() { f.Close() }, nil
}
