package model

import "fmt"

// IOError is a boundary failure: reading a source file or writing a report.
type IOError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ReadError(path string, err error) error  { return &IOError{Op: "read", Path: path, Err: err} }
func WriteError(path string, err error) error { return &IOError{Op: "write", Path: path, Err: err} }
