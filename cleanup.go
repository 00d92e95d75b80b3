package palloc

import (
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// CleanupFunc releases a resource tied to an arena. It receives the
// cleanup's Data.
type CleanupFunc func(data []byte)

// Cleanup is a deferred handler run when its arena is destroyed. Handlers
// run newest first, exactly once; a nil Handler is skipped.
type Cleanup struct {
	Handler CleanupFunc
	Data    []byte

	file *fileCleanup
}

// fileCleanup binds a cleanup to an open file.
type fileCleanup struct {
	f      *os.File
	fd     uintptr
	remove bool
}

var cleanupRecordSize = int(unsafe.Sizeof(Cleanup{}))

// AddCleanup registers a new cleanup with dataSize bytes of arena memory in
// Data. The caller sets Handler (and fills Data) afterwards.
func (a *Arena) AddCleanup(dataSize int) (*Cleanup, error) {
	panicIfDestroyed(a)
	if dataSize < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "cleanup data of %d bytes", dataSize)
	}
	if _, err := a.allocSmall(cleanupRecordSize, true); err != nil {
		return nil, errors.Wrap(err, "add cleanup")
	}
	c := &Cleanup{}
	if dataSize > 0 {
		data, err := a.Alloc(dataSize)
		if err != nil {
			return nil, errors.Wrap(err, "add cleanup data")
		}
		c.Data = data
	}
	a.cleanups = append(a.cleanups, c)

	if ce := a.log.Check(zap.DebugLevel, "palloc: add cleanup"); ce != nil {
		ce.Write(zap.Int("index", len(a.cleanups)-1), zap.Int("data", dataSize))
	}
	return c, nil
}

// AddFileCleanup closes f when the arena is destroyed, unless it was
// closed earlier through RunFileCleanup.
func (a *Arena) AddFileCleanup(f *os.File) (*Cleanup, error) {
	return a.addFileCleanup(f, false)
}

// AddDeleteFileCleanup removes the file named by f and closes f when the
// arena is destroyed. A file that is already gone is not an error.
func (a *Arena) AddDeleteFileCleanup(f *os.File) (*Cleanup, error) {
	return a.addFileCleanup(f, true)
}

func (a *Arena) addFileCleanup(f *os.File, remove bool) (*Cleanup, error) {
	c, err := a.AddCleanup(0)
	if err != nil {
		return nil, err
	}
	fc := &fileCleanup{f: f, fd: f.Fd(), remove: remove}
	c.file = fc
	c.Handler = func([]byte) { a.cleanupFile(fc) }
	return c, nil
}

func (a *Arena) cleanupFile(fc *fileCleanup) {
	if ce := a.log.Check(zap.DebugLevel, "palloc: file cleanup"); ce != nil {
		ce.Write(zap.Uintptr("fd", fc.fd), zap.String("name", fc.f.Name()))
	}
	if fc.remove {
		if err := os.Remove(fc.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.log.Error("palloc: remove file failed", zap.String("name", fc.f.Name()), zap.Error(err))
		}
	}
	if err := fc.f.Close(); err != nil {
		a.log.Error("palloc: close file failed", zap.String("name", fc.f.Name()), zap.Error(err))
	}
}

// RunFileCleanup closes the file with descriptor fd now, if a close cleanup
// for it is registered, and disarms that cleanup so Destroy does not run it
// again. It reports whether such a cleanup was found.
func (a *Arena) RunFileCleanup(fd uintptr) bool {
	panicIfDestroyed(a)
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		c := a.cleanups[i]
		if c.Handler == nil || c.file == nil || c.file.remove || c.file.fd != fd {
			continue
		}
		c.Handler(c.Data)
		c.Handler = nil
		return true
	}
	return false
}
