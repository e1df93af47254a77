package future

// Version information for the future package.
const (
	// Version is the current version of the future package.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)
