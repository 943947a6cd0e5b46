package params

// Version is the library version, kept in sync with the VERSION file
// at the repository root.
const Version = "0.1.0"
