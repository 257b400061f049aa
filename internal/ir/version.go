package ir

// Version constants for the investigation file format and the tool.
const (
	// SchemaVersion is the investigation unit schema version written to
	// PRAGMA user_version.
	SchemaVersion = 1

	// AppVersion is the skop release version.
	AppVersion = "0.1.0"

	// FileExtension is the extension used for investigation units.
	FileExtension = ".skop"
)
