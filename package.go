// Package dokan bridges the Dokany file system driver with
// file system providers written in golang.
//
// The driver forwards every request on the mounted volume
// into the user mode library, which calls back into the
// Dispatcher. The Dispatcher converts the native arguments
// into the BehaviourBase contract and its optional Behaviour*
// interfaces, then maps the outcome back into a Status.
//
// The native library is invoked in a DLLProc+NonCGO manner,
// so mounting is only usable on windows. The Dispatcher is
// platform neutral and might be driven directly.
package dokan
