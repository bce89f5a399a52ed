package engine

import (
	"errors"
	"fmt"

	"github.com/stockgrid/listing-engine/internal/store"
)

// Kind names the entity an error refers to.
type Kind string

const (
	KindStock    Kind = "stock"
	KindExchange Kind = "stock exchange"
	KindListing  Kind = "listing"
)

// NotFoundError reports that a referenced stock, exchange, or listing does
// not exist. For listings the IDs name the stocks that are not listed on
// the exchange, never an internal key.
type NotFoundError struct {
	Kind Kind
	IDs  []int64
}

func (e *NotFoundError) Error() string {
	if e.Kind == KindListing {
		if len(e.IDs) == 1 {
			return fmt.Sprintf("stock with id %d is not listed on this exchange", e.IDs[0])
		}
		return fmt.Sprintf("stocks not listed on this exchange: %v", e.IDs)
	}
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s not found with id: %d", e.Kind, e.IDs[0])
	}
	return fmt.Sprintf("%ss not found with ids: %v", e.Kind, e.IDs)
}

// ConflictError reports a uniqueness violation: stocks already listed on an
// exchange, or a duplicate stock name.
type ConflictError struct {
	Kind Kind
	IDs  []int64
	Name string // set for duplicate-name conflicts
}

func (e *ConflictError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s with name %q already exists", e.Kind, e.Name)
	}
	if len(e.IDs) == 1 {
		return fmt.Sprintf("stock with id %d is already listed on this exchange", e.IDs[0])
	}
	return fmt.Sprintf("stocks already listed on this exchange: %v", e.IDs)
}

// InvalidArgumentError reports a malformed request, such as an empty id
// collection supplied to a batch operation.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return e.Reason
}

// StaleWriteError reports an optimistic version check that failed at commit
// time. The engine never retries; the caller decides.
type StaleWriteError struct {
	Kind Kind
	ID   int64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently", e.Kind, e.ID)
}

// mapSaveErr translates version-checked save failures into the engine
// taxonomy.
func mapSaveErr(err error, kind Kind, id int64) error {
	if errors.Is(err, store.ErrStaleWrite) {
		return &StaleWriteError{Kind: kind, ID: id}
	}
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Kind: kind, IDs: []int64{id}}
	}
	return err
}
