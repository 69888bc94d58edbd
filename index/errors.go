package index

import "errors"

var (
	// ErrBadOpcodes is returned when StartScan receives operators other than
	// GT/GTE for the low bound or LT/LTE for the high bound.
	ErrBadOpcodes = errors.New("bad scan opcodes")
	// ErrBadScanRange is returned when the low bound exceeds the high bound.
	ErrBadScanRange = errors.New("bad scan range")
	// ErrScanNotInitialized is returned by ScanNext and EndScan without an
	// active scan.
	ErrScanNotInitialized = errors.New("scan not initialized")
	// ErrIndexScanCompleted reports that no key, or no further key,
	// satisfies the scan predicate. The scan stays terminal until EndScan.
	ErrIndexScanCompleted = errors.New("index scan completed")
	// ErrNoSuchKeyFound is reserved; no current operation returns it.
	ErrNoSuchKeyFound = errors.New("no such key found")
)
