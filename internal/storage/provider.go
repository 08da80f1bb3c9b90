// Package storage provides the state-directory abstraction used for client-side files
// such as the persisted session.
package storage

// Provider is the interface for state-directory file operations.
// All paths are relative to the provider root.
type Provider interface {
	// Root returns the absolute path of the state directory.
	Root() string
	// Read returns the raw bytes of the file at path.
	// A missing file yields an error matching apperr.ErrNotFound.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Delete removes the file at path. Deleting a missing file is not an error.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
}
