// Package storage provides the durable key/blob store backing chat history.
package storage

// Store persists opaque JSON blobs under string keys. Read reports whether
// the key exists; Write replaces any previous blob atomically.
type Store interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, blob []byte) error
}
