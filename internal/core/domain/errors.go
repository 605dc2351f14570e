package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")

	ErrExpansion  = errors.New("query expansion failure")
	ErrRetrieval  = errors.New("retrieval failure")
	ErrRerank     = errors.New("rerank failure")
	ErrGeneration = errors.New("generation failure")
	ErrMetric     = errors.New("metric computation failure")

	// ErrNoSuccessfulRecords marks a run that cannot be compared because no
	// question finished evaluation.
	ErrNoSuccessfulRecords = errors.New("run has no successfully evaluated questions")
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
