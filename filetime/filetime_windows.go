package filetime

import (
	"syscall"
)

// Filetime converts the native FILETIME into ticks.
func Filetime(t syscall.Filetime) uint64 {
	return Join(t.LowDateTime, t.HighDateTime)
}

// Native converts the ticks into a native FILETIME.
func Native(ticks uint64) syscall.Filetime {
	low, high := Split(ticks)
	return syscall.Filetime{
		LowDateTime:  low,
		HighDateTime: high,
	}
}
