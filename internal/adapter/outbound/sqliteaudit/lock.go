package sqliteaudit

import (
	"fmt"
	"os"
	"path/filepath"
)

// dirLock is an advisory exclusive lock held over a database's containing
// directory for the process lifetime, enforcing the single-writer
// discipline at the OS level alongside sqlite's own file locking.
type dirLock struct {
	f *os.File
}

func acquireDirLock(dbPath string) (*dirLock, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	lockPath := filepath.Join(dir, ".clawguard.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := flockLock(f.Fd()); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) release() {
	if l == nil || l.f == nil {
		return
	}
	flockUnlock(l.f.Fd())
	l.f.Close()
}
