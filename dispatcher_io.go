package dokan

import (
	"io"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/pathnorm"
)

// FillFindData appends an entry to the listing buffer of the
// driver, it returns true if the buffer is full.
type FillFindData func(*fileinfo.FindData) bool

// StreamData is the WIN32_FIND_STREAM_DATA layout.
type StreamData struct {
	StreamSize int64
	StreamName [fileinfo.MaxPath + 36]uint16
}

// FillFindStreamData appends a stream to the listing buffer
// of the driver, it returns true if the buffer is full.
type FillFindStreamData func(*StreamData) bool

func (d *Dispatcher) transferred(
	operation, path string, n, limit int, err error,
) (uint32, Status) {
	if n < 0 || n > limit {
		d.logger.Errorf("%s %q: provider transferred %d of %d bytes",
			operation, path, n, limit)
		return 0, StatusInternalError
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return uint32(n), d.status(operation, path, err)
	}
	return uint32(n), StatusSuccess
}

// Read reads the open file at offset into the buffer.
//
// Reading at or past the end of file is not an error, the
// count of bytes read is just zero.
func (d *Dispatcher) Read(
	name string, buf []byte, readLen *uint32,
	offset int64, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpRead, info, &status)
	defer done()
	if readLen == nil || offset < 0 {
		return StatusInvalidParameter
	}
	*readLen = 0
	if d.read == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	if rc.IsDirectory() {
		return StatusFileIsADirectory
	}
	n, err := d.read.Read(ctx, path, rc, buf, offset, info.IOFlags())
	*readLen, status = d.transferred(OpRead, path, n, len(buf), err)
	return status
}

// Write writes the buffer into the open file at offset, or
// at its end when the write to end of file flag is set.
func (d *Dispatcher) Write(
	name string, buf []byte, writeLen *uint32,
	offset int64, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpWrite, info, &status)
	defer done()
	if writeLen == nil {
		return StatusInvalidParameter
	}
	*writeLen = 0
	if d.write == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	if rc.IsDirectory() {
		return StatusFileIsADirectory
	}
	flags := info.IOFlags()
	if offset < 0 && !flags.WriteToEndOfFile {
		return StatusInvalidParameter
	}
	n, err := d.write.Write(ctx, path, rc, buf, offset, flags)
	*writeLen, status = d.transferred(OpWrite, path, n, len(buf), err)
	return status
}

// Flush flushes the buffers of the open file. A provider
// without buffers has nothing to flush.
func (d *Dispatcher) Flush(name string, info *NativeFileInfo) (status Status) {
	ctx, done := d.enter(OpFlush, info, &status)
	defer done()
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	if d.flush == nil {
		return StatusSuccess
	}
	return d.status(OpFlush, path, d.flush.FlushFileBuffers(ctx, path, rc))
}

// FindFiles lists every entry of the open directory.
func (d *Dispatcher) FindFiles(
	name string, fill FillFindData, info *NativeFileInfo,
) Status {
	return d.findFiles(OpFindFiles, name, "*", fill, info)
}

// FindFilesWithPattern lists the entries of the open directory
// whose names match the pattern.
func (d *Dispatcher) FindFilesWithPattern(
	name, pattern string, fill FillFindData, info *NativeFileInfo,
) Status {
	return d.findFiles(OpFindFilesWithPattern, name, pattern, fill, info)
}

func (d *Dispatcher) findFiles(
	operation, name, pattern string,
	fill FillFindData, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(operation, info, &status)
	defer done()
	if fill == nil {
		return StatusInvalidParameter
	}
	if d.behaviours.findFiles == nil {
		return StatusNotImplemented
	}
	rc, _, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	path := pathnorm.Normalize(name, true)
	records, err := d.behaviours.findFiles.FindFilesWithPattern(
		ctx, path, pattern, !d.caseSensitive)
	if err != nil {
		return d.status(operation, path, err)
	}
	for _, record := range records {
		if record.VolumeSerial() == 0 {
			record = record.With(fileinfo.WithVolumeSerial(d.volume.SerialNumber))
		}
		data := record.FindData()
		if fill(&data) {
			d.logger.Warnf("%s %q: listing buffer full", operation, path)
			return StatusBufferOverflow
		}
	}
	return StatusSuccess
}

// FindStreams lists the alternate data streams of the file.
func (d *Dispatcher) FindStreams(
	name string, fill FillFindStreamData, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpFindStreams, info, &status)
	defer done()
	if fill == nil {
		return StatusInvalidParameter
	}
	if d.findStreams == nil || !d.mountOptions.Has(MountAltStream) {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	streams, err := d.findStreams.FindStreams(ctx, path)
	if err != nil {
		return d.status(OpFindStreams, path, err)
	}
	for _, stream := range streams {
		data := StreamData{StreamSize: stream.Size}
		fileinfo.CopyUTF16(data.StreamName[:], stream.Name)
		if fill(&data) {
			return StatusBufferOverflow
		}
	}
	return StatusSuccess
}

func (d *Dispatcher) lockRange(
	operation, name string, offset, length int64,
	info *NativeFileInfo, unlock bool,
) (status Status) {
	ctx, done := d.enter(operation, info, &status)
	defer done()
	if offset < 0 || length < 0 {
		return StatusInvalidParameter
	}
	if d.lock == nil || !d.mountOptions.Has(MountFileLockUserMode) {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	var err error
	if unlock {
		err = d.lock.Unlock(ctx, path, offset, length)
	} else {
		err = d.lock.Lock(ctx, path, offset, length)
	}
	return d.status(operation, path, err)
}

// LockFile locks the byte range of the file.
func (d *Dispatcher) LockFile(
	name string, offset, length int64, info *NativeFileInfo,
) Status {
	return d.lockRange(OpLockFile, name, offset, length, info, false)
}

// UnlockFile unlocks the byte range of the file.
func (d *Dispatcher) UnlockFile(
	name string, offset, length int64, info *NativeFileInfo,
) Status {
	return d.lockRange(OpUnlockFile, name, offset, length, info, true)
}
