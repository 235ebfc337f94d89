package ir

// Version constants for the record model and engine.
const (
	// RecordVersion is the canonical record schema version.
	RecordVersion = "1"

	// EngineVersion is the dyneval engine version.
	EngineVersion = "0.1.0"
)
