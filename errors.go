package depot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node or ref does not exist.
	ErrNotFound = errors.New("depot: not found")

	// ErrKeyMismatch is returned by PutNode when the supplied key does
	// not match the content hash of the bytes.
	ErrKeyMismatch = errors.New("depot: key does not match content")
)

// DecodeError reports malformed node bytes. Decoding never partially
// succeeds: any DecodeError means no node state was produced.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "depot: decode node: " + e.Reason
}

// ChildMissingError is returned by PutNode when a dict node references
// a child that is not present in storage. The write is rejected whole.
type ChildMissingError struct {
	Parent Key
	Child  Key
	Name   string
}

func (e *ChildMissingError) Error() string {
	return fmt.Sprintf("depot: node %s references missing child %s (%q)", e.Parent, e.Child, e.Name)
}

// IsChildMissing reports whether err is a ChildMissingError.
func IsChildMissing(err error) bool {
	var cm *ChildMissingError
	return errors.As(err, &cm)
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
