package dokan

import (
	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/bitmask"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/pathnorm"
)

// GetFileInformation fills the information of the open file.
func (d *Dispatcher) GetFileInformation(
	name string, out *fileinfo.ByHandleInfo, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpGetFileInformation, info, &status)
	defer done()
	if out == nil {
		return StatusInvalidParameter
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	record, err := d.base.GetInfo(ctx, path)
	if err != nil {
		return d.status(OpGetFileInformation, path, err)
	}
	if record.VolumeSerial() == 0 {
		record = record.With(fileinfo.WithVolumeSerial(d.volume.SerialNumber))
	}
	*out = record.ByHandleInfo()
	return StatusSuccess
}

// SetFileAttributes replaces the attributes of the open file,
// a zero mask leaves them untouched.
func (d *Dispatcher) SetFileAttributes(
	name string, attributes uint32, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpSetFileAttributes, info, &status)
	defer done()
	if d.setAttributes == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	if attributes == 0 {
		return StatusSuccess
	}
	return d.status(OpSetFileAttributes, path, d.setAttributes.SetAttributes(
		ctx, path, attribute.FromMask(attributes)))
}

// timeUnchanged is the tick count telling that a timestamp
// must not be modified, the same as zero.
const timeUnchanged = ^uint64(0)

func timeArg(ticks uint64) uint64 {
	if ticks == timeUnchanged {
		return 0
	}
	return ticks
}

// SetFileTime updates the timestamps of the open file, a zero
// tick count leaves that timestamp untouched.
func (d *Dispatcher) SetFileTime(
	name string, creation, access, write uint64, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpSetFileTime, info, &status)
	defer done()
	if d.setTime == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	creation, access, write = timeArg(creation), timeArg(access), timeArg(write)
	if creation == 0 && access == 0 && write == 0 {
		return StatusSuccess
	}
	return d.status(OpSetFileTime, path, d.setTime.SetTime(
		ctx, path, creation, access, write))
}

// deleteRequest checks whether the open file might be deleted
// and records the outcome in its context.
//
// The driver reports whether it is requesting or cancelling
// the deletion through the delete on close flag. Nothing is
// deleted here: the deletion happens at Cleanup.
func (d *Dispatcher) deleteRequest(
	operation, name string, info *NativeFileInfo, directory bool,
) (status Status) {
	ctx, done := d.enter(operation, info, &status)
	defer done()
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	rc.SetDeleteOnClose(false)
	if info.DeleteOnClose == 0 {
		return StatusSuccess
	}
	switch {
	case directory && !rc.IsDirectory():
		return StatusNotADirectory
	case !directory && rc.IsDirectory():
		return StatusFileIsADirectory
	case d.delete == nil:
		return StatusNotImplemented
	}
	var err error
	if directory {
		err = d.delete.DeleteDirectory(ctx, path, rc)
	} else {
		err = d.delete.DeleteFile(ctx, path, rc)
	}
	if err != nil {
		return d.status(operation, path, err)
	}
	rc.SetDeleteOnClose(true)
	return StatusSuccess
}

// DeleteFile checks whether the open file might be deleted.
func (d *Dispatcher) DeleteFile(name string, info *NativeFileInfo) Status {
	return d.deleteRequest(OpDeleteFile, name, info, false)
}

// DeleteDirectory checks whether the open directory might be
// deleted, which also requires it to be empty.
func (d *Dispatcher) DeleteDirectory(name string, info *NativeFileInfo) Status {
	return d.deleteRequest(OpDeleteDirectory, name, info, true)
}

// MoveFile renames the open file to the new name.
func (d *Dispatcher) MoveFile(
	name, newName string, replace bool, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpMoveFile, info, &status)
	defer done()
	if d.move == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	newPath := pathnorm.Normalize(newName, rc.IsDirectory())
	if pathnorm.Key(newPath) == "/" {
		return StatusAccessDenied
	}
	return d.status(OpMoveFile, path, d.move.Move(ctx, path, newPath, replace))
}

// SetEndOfFile changes the visible size of the open file.
func (d *Dispatcher) SetEndOfFile(
	name string, offset int64, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpSetEndOfFile, info, &status)
	defer done()
	if offset < 0 {
		return StatusInvalidParameter
	}
	if d.setEndOfFile == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	return d.status(OpSetEndOfFile, path,
		d.setEndOfFile.SetEndOfFile(ctx, path, offset))
}

// SetAllocationSize changes the space reserved for the open
// file.
func (d *Dispatcher) SetAllocationSize(
	name string, size int64, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpSetAllocationSize, info, &status)
	defer done()
	if size < 0 {
		return StatusInvalidParameter
	}
	if d.setAllocationSize == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	return d.status(OpSetAllocationSize, path,
		d.setAllocationSize.SetAllocationSize(ctx, path, size))
}

// GetDiskFreeSpace reports the space of the volume.
func (d *Dispatcher) GetDiskFreeSpace(
	freeBytesAvailable, totalBytes, totalFreeBytes *uint64,
	info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpGetDiskFreeSpace, info, &status)
	defer done()
	space := d.space
	if d.behaviours.freeSpace != nil {
		var err error
		if space, err = d.behaviours.freeSpace.FreeSpace(ctx); err != nil {
			return d.status(OpGetDiskFreeSpace, "", err)
		}
	}
	if freeBytesAvailable != nil {
		*freeBytesAvailable = space.FreeBytesAvailable
	}
	if totalBytes != nil {
		*totalBytes = space.TotalBytes
	}
	if totalFreeBytes != nil {
		*totalFreeBytes = space.TotalFreeBytes
	}
	return StatusSuccess
}

// GetVolumeInformation reports the volume information. The
// names are truncated to fit the buffers.
func (d *Dispatcher) GetVolumeInformation(
	volumeName []uint16, serialNumber, maxComponentLength,
	features *uint32, fileSystemName []uint16, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpGetVolumeInformation, info, &status)
	defer done()
	volume := d.volume
	if d.volumeInfo != nil {
		var err error
		if volume, err = d.volumeInfo.VolumeInfo(ctx); err != nil {
			return d.status(OpGetVolumeInformation, "", err)
		}
	}
	fileinfo.CopyUTF16(volumeName, volume.Name)
	fileinfo.CopyUTF16(fileSystemName, volume.FileSystemName)
	if serialNumber != nil {
		*serialNumber = volume.SerialNumber
	}
	if maxComponentLength != nil {
		*maxComponentLength = volume.MaxComponentLength
	}
	if features != nil {
		*features = volume.Features.Encode()
	}
	return StatusSuccess
}

// GetFileSecurity copies the requested parts of the security
// descriptor into the buffer. When the buffer is too small,
// StatusBufferOverflow is returned with the length needed.
func (d *Dispatcher) GetFileSecurity(
	name string, kind uint32, buf []byte, lengthNeeded *uint32,
	info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpGetFileSecurity, info, &status)
	defer done()
	if lengthNeeded == nil {
		return StatusInvalidParameter
	}
	if d.getSecurity == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	descriptor, err := d.getSecurity.GetSecurity(ctx, path,
		bitmask.Decode(kind, SecurityInformationUniverse))
	if err != nil {
		return d.status(OpGetFileSecurity, path, err)
	}
	*lengthNeeded = uint32(len(descriptor))
	if len(buf) < len(descriptor) {
		return StatusBufferOverflow
	}
	copy(buf, descriptor)
	return StatusSuccess
}

// SetFileSecurity updates the security descriptor.
func (d *Dispatcher) SetFileSecurity(
	name string, kind uint32, descriptor []byte, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpSetFileSecurity, info, &status)
	defer done()
	if d.setSecurity == nil {
		return StatusNotImplemented
	}
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	if len(descriptor) == 0 {
		return StatusInvalidParameter
	}
	return d.status(OpSetFileSecurity, path, d.setSecurity.SetSecurity(ctx, path,
		bitmask.Decode(kind, SecurityInformationUniverse), descriptor))
}
