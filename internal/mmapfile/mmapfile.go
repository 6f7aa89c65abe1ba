// Package mmapfile owns the TDAG container's backing file: creating it at
// a fixed capacity, memory-mapping it read/write, and unmapping it cleanly
// on close. It is the only package in this module that talks to the
// operating system's mapping primitives directly.
package mmapfile

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/trailofbits/taintdag/pkg/errors"
	"github.com/trailofbits/taintdag/pkg/filesys"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// File is a fixed-capacity sparse file mapped into memory with MAP_SHARED.
// Nothing beyond the byte range each section actually writes ever touches
// disk, because the file is created with Ftruncate rather than by writing
// zero bytes.
type File struct {
	path   string
	file   *os.File
	data   []byte
	closed atomic.Bool
	log    *zap.SugaredLogger
}

// Create creates (or truncates) the file at path, grows it to size bytes
// via Ftruncate, and maps it read/write with MAP_SHARED. size is the
// caller's precomputed container capacity: FileHeader plus every section's
// allocation size plus alignment slack.
func Create(path string, size int64, log *zap.SugaredLogger) (*File, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := filesys.CreateDir(dir, 0755, true); err != nil {
			return nil, errors.ClassifyDirectoryCreationError(err, dir)
		}
	}

	log.Infow("creating container file", "path", path, "size", size)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errors.ClassifySyncError(err, filepath.Base(path), path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.ClassifyMappingError(err, path, size)
	}

	log.Infow("container file mapped", "path", path, "size", size)

	return &File{path: path, file: f, data: data, log: log}, nil
}

// Bytes returns the full mapped region. Sections take disjoint sub-slices
// of it; no two sections alias.
func (mf *File) Bytes() []byte {
	return mf.data
}

// Path returns the backing file's path.
func (mf *File) Path() string {
	return mf.path
}

// Sync flushes the mapping back to disk (msync) without unmapping it.
func (mf *File) Sync() error {
	if err := unix.Msync(mf.data, unix.MS_SYNC); err != nil {
		return errors.ClassifySyncError(err, filepath.Base(mf.path), mf.path, int64(len(mf.data)))
	}
	return nil
}

// Truncate resizes the underlying file to size bytes. Nothing in this
// module calls it; Close leaves the file at its full mapped size.
func (mf *File) Truncate(size int64) error {
	if err := mf.file.Truncate(size); err != nil {
		return errors.ClassifySyncError(err, filepath.Base(mf.path), mf.path, size)
	}
	return nil
}

// Close unmaps the file and closes its descriptor. It is idempotent: a
// second call returns nil without doing anything.
func (mf *File) Close() error {
	if !mf.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs error
	if err := unix.Munmap(mf.data); err != nil {
		errs = multierr.Append(errs, errors.ClassifyMappingError(err, mf.path, int64(len(mf.data))))
	}
	if err := mf.file.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}

	mf.log.Infow("container file closed", "path", mf.path)
	return errs
}
