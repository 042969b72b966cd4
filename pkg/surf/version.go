package surf

// Version information
const (
	// Version is the current library version.
	Version = "1.0.0"

	// FormatVersion is the serialization format version.
	FormatVersion = 1
)
