package dokan

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/bitmask"
)

// MountOption is a DOKAN_OPTION_* flag.
type MountOption uint32

const (
	MountDebugMode        = MountOption(1)
	MountStdErrOutput     = MountOption(2)
	MountAltStream        = MountOption(4)
	MountWriteProtection  = MountOption(8)
	MountNetworkDrive     = MountOption(16)
	MountRemovableDrive   = MountOption(32)
	MountMountManager     = MountOption(64)
	MountCurrentSession   = MountOption(128)
	MountFileLockUserMode = MountOption(256)
)

// MountOptionUniverse lists the mount options. They are
// single bits, so the order is not significant.
var MountOptionUniverse = bitmask.Universe[MountOption]{
	MountDebugMode, MountStdErrOutput, MountAltStream,
	MountWriteProtection, MountNetworkDrive, MountRemovableDrive,
	MountMountManager, MountCurrentSession, MountFileLockUserMode,
}

var mountOptionNames = map[string]MountOption{
	"debug_mode":         MountDebugMode,
	"stderr_output":      MountStdErrOutput,
	"alt_stream":         MountAltStream,
	"write_protection":   MountWriteProtection,
	"network_drive":      MountNetworkDrive,
	"removable_drive":    MountRemovableDrive,
	"mount_manager":      MountMountManager,
	"current_session":    MountCurrentSession,
	"filelock_user_mode": MountFileLockUserMode,
}

// ParseMountOption parses the snake case name of an option.
func ParseMountOption(name string) (MountOption, error) {
	if option, ok := mountOptionNames[strings.ToLower(name)]; ok {
		return option, nil
	}
	return 0, errors.Errorf("unknown mount option %q", name)
}

// MountOptionSet is a set of mount options.
type MountOptionSet = bitmask.Set[MountOption]

// FileAccess is an ACCESS_MASK right, or a composite of them.
type FileAccess uint32

const (
	AccessReadData        = FileAccess(0x00000001)
	AccessWriteData       = FileAccess(0x00000002)
	AccessAppendData      = FileAccess(0x00000004)
	AccessReadEA          = FileAccess(0x00000008)
	AccessWriteEA         = FileAccess(0x00000010)
	AccessExecute         = FileAccess(0x00000020)
	AccessDeleteChild     = FileAccess(0x00000040)
	AccessReadAttributes  = FileAccess(0x00000080)
	AccessWriteAttributes = FileAccess(0x00000100)
	AccessDelete          = FileAccess(0x00010000)
	AccessReadControl     = FileAccess(0x00020000)
	AccessWriteDac        = FileAccess(0x00040000)
	AccessWriteOwner      = FileAccess(0x00080000)
	AccessSynchronize     = FileAccess(0x00100000)
	AccessSystemSecurity  = FileAccess(0x01000000)
	AccessMaximumAllowed  = FileAccess(0x02000000)
	AccessGenericAll      = FileAccess(0x10000000)
	AccessGenericExecute  = FileAccess(0x20000000)
	AccessGenericWrite    = FileAccess(0x40000000)
	AccessGenericRead     = FileAccess(0x80000000)

	AccessFileAll = FileAccess(0x001F01FF)

	AccessFileGenericRead = AccessReadControl | AccessReadData |
		AccessReadAttributes | AccessReadEA | AccessSynchronize

	AccessFileGenericWrite = AccessReadControl | AccessWriteData |
		AccessWriteAttributes | AccessWriteEA | AccessAppendData |
		AccessSynchronize

	AccessFileGenericExecute = AccessReadControl | AccessReadAttributes |
		AccessExecute | AccessSynchronize
)

// FileAccessUniverse lists the access rights. The composite
// masks come first so that a request for FILE_ALL_ACCESS
// decodes into that single flag instead of its parts. The
// generic FILE_GENERIC_* masks overlap each other, the first
// one matched consumes the shared bits.
var FileAccessUniverse = bitmask.Universe[FileAccess]{
	AccessGenericAll, AccessGenericExecute, AccessGenericWrite,
	AccessGenericRead, AccessFileAll, AccessFileGenericWrite,
	AccessFileGenericRead, AccessFileGenericExecute,
	AccessReadData, AccessWriteData, AccessAppendData,
	AccessReadEA, AccessWriteEA, AccessExecute, AccessDeleteChild,
	AccessReadAttributes, AccessWriteAttributes, AccessDelete,
	AccessReadControl, AccessWriteDac, AccessWriteOwner,
	AccessSynchronize, AccessSystemSecurity, AccessMaximumAllowed,
}

// FileAccessSet is a set of access rights.
type FileAccessSet = bitmask.Set[FileAccess]

// CreateDisposition is the kernel FILE_* create disposition.
// It is an ordinal value, and is never decoded bit by bit.
type CreateDisposition uint32

const (
	FileSupersede   = CreateDisposition(0)
	FileOpen        = CreateDisposition(1)
	FileCreate      = CreateDisposition(2)
	FileOpenIf      = CreateDisposition(3)
	FileOverwrite   = CreateDisposition(4)
	FileOverwriteIf = CreateDisposition(5)
)

// CreateDispositionUniverse lists the dispositions for the
// exact value lookup.
var CreateDispositionUniverse = bitmask.Universe[CreateDisposition]{
	FileSupersede, FileOpen, FileCreate,
	FileOpenIf, FileOverwrite, FileOverwriteIf,
}

func (d CreateDisposition) String() string {
	switch d {
	case FileSupersede:
		return "FILE_SUPERSEDE"
	case FileOpen:
		return "FILE_OPEN"
	case FileCreate:
		return "FILE_CREATE"
	case FileOpenIf:
		return "FILE_OPEN_IF"
	case FileOverwrite:
		return "FILE_OVERWRITE"
	case FileOverwriteIf:
		return "FILE_OVERWRITE_IF"
	}
	return "FILE_DISPOSITION_UNKNOWN"
}

// CreateOption is a kernel FILE_* create option.
type CreateOption uint32

const (
	OptionDirectoryFile         = CreateOption(0x00000001)
	OptionWriteThrough          = CreateOption(0x00000002)
	OptionSequentialOnly        = CreateOption(0x00000004)
	OptionNoIntermediateBuffer  = CreateOption(0x00000008)
	OptionSynchronousIoAlert    = CreateOption(0x00000010)
	OptionSynchronousIoNonAlert = CreateOption(0x00000020)
	OptionNonDirectoryFile      = CreateOption(0x00000040)
	OptionRandomAccess          = CreateOption(0x00000800)
	OptionDeleteOnClose         = CreateOption(0x00001000)
	OptionOpenByFileID          = CreateOption(0x00002000)
	OptionOpenForBackupIntent   = CreateOption(0x00004000)
	OptionNoCompression         = CreateOption(0x00008000)
	OptionOpenReparsePoint      = CreateOption(0x00200000)
)

// CreateOptionUniverse lists the create options.
var CreateOptionUniverse = bitmask.Universe[CreateOption]{
	OptionDirectoryFile, OptionWriteThrough, OptionSequentialOnly,
	OptionNoIntermediateBuffer, OptionSynchronousIoAlert,
	OptionSynchronousIoNonAlert, OptionNonDirectoryFile,
	OptionRandomAccess, OptionDeleteOnClose, OptionOpenByFileID,
	OptionOpenForBackupIntent, OptionNoCompression,
	OptionOpenReparsePoint,
}

// CreateOptionSet is a set of create options.
type CreateOptionSet = bitmask.Set[CreateOption]

// FileSystemFeature is a FILE_* file system flag reported
// with the volume information.
type FileSystemFeature uint32

const (
	FeatureCaseSensitiveSearch        = FileSystemFeature(0x00000001)
	FeatureCasePreservedNames         = FileSystemFeature(0x00000002)
	FeatureUnicodeOnDisk              = FileSystemFeature(0x00000004)
	FeaturePersistentAcls             = FileSystemFeature(0x00000008)
	FeatureFileCompression            = FileSystemFeature(0x00000010)
	FeatureVolumeQuotas               = FileSystemFeature(0x00000020)
	FeatureSupportsSparseFiles        = FileSystemFeature(0x00000040)
	FeatureSupportsReparsePoints      = FileSystemFeature(0x00000080)
	FeatureSupportsRemoteStorage      = FileSystemFeature(0x00000100)
	FeatureVolumeIsCompressed         = FileSystemFeature(0x00008000)
	FeatureSupportsObjectIDs          = FileSystemFeature(0x00010000)
	FeatureSupportsEncryption         = FileSystemFeature(0x00020000)
	FeatureNamedStreams               = FileSystemFeature(0x00040000)
	FeatureReadOnlyVolume             = FileSystemFeature(0x00080000)
	FeatureSequentialWriteOnce        = FileSystemFeature(0x00100000)
	FeatureSupportsTransactions       = FileSystemFeature(0x00200000)
	FeatureSupportsHardLinks          = FileSystemFeature(0x00400000)
	FeatureSupportsExtendedAttributes = FileSystemFeature(0x00800000)
	FeatureSupportsOpenByFileID       = FileSystemFeature(0x01000000)
	FeatureSupportsUsnJournal         = FileSystemFeature(0x02000000)
)

// FileSystemFeatureUniverse lists the file system features.
var FileSystemFeatureUniverse = bitmask.Universe[FileSystemFeature]{
	FeatureCaseSensitiveSearch, FeatureCasePreservedNames,
	FeatureUnicodeOnDisk, FeaturePersistentAcls,
	FeatureFileCompression, FeatureVolumeQuotas,
	FeatureSupportsSparseFiles, FeatureSupportsReparsePoints,
	FeatureSupportsRemoteStorage, FeatureVolumeIsCompressed,
	FeatureSupportsObjectIDs, FeatureSupportsEncryption,
	FeatureNamedStreams, FeatureReadOnlyVolume,
	FeatureSequentialWriteOnce, FeatureSupportsTransactions,
	FeatureSupportsHardLinks, FeatureSupportsExtendedAttributes,
	FeatureSupportsOpenByFileID, FeatureSupportsUsnJournal,
}

// FileSystemFeatureSet is a set of file system features.
type FileSystemFeatureSet = bitmask.Set[FileSystemFeature]

// SecurityInformation is a *_SECURITY_INFORMATION flag naming
// the parts of a security descriptor being queried or set.
type SecurityInformation uint32

const (
	OwnerSecurityInformation = SecurityInformation(0x00000001)
	GroupSecurityInformation = SecurityInformation(0x00000002)
	DaclSecurityInformation  = SecurityInformation(0x00000004)
	SaclSecurityInformation  = SecurityInformation(0x00000008)
	LabelSecurityInformation = SecurityInformation(0x00000010)
)

// SecurityInformationUniverse lists the security parts.
var SecurityInformationUniverse = bitmask.Universe[SecurityInformation]{
	OwnerSecurityInformation, GroupSecurityInformation,
	DaclSecurityInformation, SaclSecurityInformation,
	LabelSecurityInformation,
}

// SecurityInformationSet is a set of security parts.
type SecurityInformationSet = bitmask.Set[SecurityInformation]
