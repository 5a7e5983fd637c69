package disk

import (
	"fmt"
	"os"
	"runtime"
)

// TempDisk is a Disk backend rooted at a freshly created, uniquely
// named scratch directory. Close removes the scratch directory; it is
// also removed best-effort if the TempDisk is garbage collected
// without an explicit Close.
type TempDisk struct {
	*Disk
}

// NewTemp creates a unique scratch directory under os.TempDir and
// roots a Disk backend there.
func NewTemp() (*TempDisk, error) {
	dir, err := os.MkdirTemp("", "vfs-tempdisk-")
	if err != nil {
		return nil, fmt.Errorf("tempdisk: %w", err)
	}
	d, err := New(dir)
	if err != nil {
		return nil, err
	}
	td := &TempDisk{Disk: d}
	runtime.SetFinalizer(td, func(td *TempDisk) { _ = os.RemoveAll(td.root) })
	return td, nil
}

// Close removes the scratch directory. Safe to call more than once.
func (td *TempDisk) Close() error {
	runtime.SetFinalizer(td, nil)
	return os.RemoveAll(td.root)
}
