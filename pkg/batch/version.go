package batch

// Version information for the batch package.
const (
	// Version is the current version of the batch package.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)
