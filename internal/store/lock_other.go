//go:build !unix

package store

// fileLock is a no-op where flock is unavailable. SQLite's own locking
// still prevents concurrent writers from corrupting the file.
type fileLock struct{}

func acquireLock(string) (*fileLock, error) { return &fileLock{}, nil }

func (l *fileLock) release() error { return nil }
