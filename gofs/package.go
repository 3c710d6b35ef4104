// Package gofs aims at providing a simple but working
// golang file system provider for dokan.
//
// The file system supports only files and directories, both
// of which are opened by the OpenFile operation, returning a
// File. A File needs only support read, write (append or
// random), close, seek, sync, readdir, truncate and stat.
//
// On the file system level, it needs only support Stat,
// OpenFile, Mkdir, Remove and Rename. Remove and Rename are
// never called while another handle is open under the path,
// so the inner file system need not care about sharing.
//
// Names handed to the inner file system are slash separated
// and rooted at "/". Dir adapts a native directory, so that
// it can be mirrored onto a volume.
package gofs
