package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownContract = errors.New("unknown contract")
	ErrInvalidManifest = errors.New("invalid routing manifest")
	ErrInvalidCorpus   = errors.New("invalid chunk corpus")
	ErrObjectNotFound  = errors.New("object not found")
	ErrTemporary       = errors.New("temporary failure")

	ErrMalformedResponse = errors.New("malformed collaborator response")
	ErrIncompleteScores  = errors.New("incomplete relevance scores")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsConfigError reports whether err is a configuration error that must reach the caller.
func IsConfigError(err error) bool {
	return IsKind(err, ErrUnknownContract) || IsKind(err, ErrInvalidManifest)
}
