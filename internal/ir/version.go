package ir

const (
	// CursorVersion is the serialization version of scheduler cursors.
	CursorVersion = 1

	// EngineVersion is stamped on run requests and evaluation records.
	EngineVersion = "0.3.0"
)
