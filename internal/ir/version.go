package ir

// Version constants for the journal schema and engine.
const (
	// JournalVersion is the flush journal entry format version.
	JournalVersion = "1"

	// EngineVersion is the touchdelay engine version.
	EngineVersion = "0.1.0"
)
