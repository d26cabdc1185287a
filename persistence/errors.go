package persistence

import (
	"errors"
	"fmt"
)

//ErrCorruptDocument marks a document that could not be decoded or failed validation
var ErrCorruptDocument = errors.New("corrupt document")

//ErrInvalidDocument marks a mapping that breaks the document rules. Loads report it together with ErrCorruptDocument, saves refuse to write it.
var ErrInvalidDocument = errors.New("invalid document")

//StorageError reports a failure reading, writing or decoding one of the documents
type StorageError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: kind, Op: op, Err: err}
}
