package ir

// Version constants for records and engine.
const (
	// IRVersion is the version of the dispatch record format.
	IRVersion = "1"

	// EngineVersion is the formsync engine version.
	EngineVersion = "0.1.0"
)
