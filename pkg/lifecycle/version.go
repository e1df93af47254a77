package lifecycle

// Version information for the lifecycle package.
const (
	// Version is the current version of the lifecycle package.
	Version = "1.1.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)
