// Package filetime converts between golang's timestamps and
// FILETIME tick counts.
//
// A FILETIME is the count of 100 nanosecond intervals since
// January 1, 1601 (UTC). It fits in a uint64, so that records
// can store plain numbers instead of concrete time values, and
// a zero tick count stands for "not specified".
package filetime
