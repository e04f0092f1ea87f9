// Package domain defines shared domain constants and types.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks lookups of entities or documents that do not exist.
var ErrNotFound = errors.New("not found")

// Entity is the closed set of collections that can be counted.
type Entity int

const (
	// EntityAddresses is the addresses collection.
	EntityAddresses Entity = iota + 1
	// EntityTransactions is the transactions collection.
	EntityTransactions
)

// Collection names backing each entity.
const (
	CollectionAddresses    = "addresses"
	CollectionTransactions = "transactions"
)

// Entities lists every countable entity in a stable order.
var Entities = []Entity{EntityAddresses, EntityTransactions}

// ParseEntity maps a caller supplied name onto an Entity. Unknown names return
// an error matching ErrNotFound.
func ParseEntity(name string) (Entity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CollectionAddresses:
		return EntityAddresses, nil
	case CollectionTransactions:
		return EntityTransactions, nil
	default:
		return 0, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
}

// Valid reports whether e is one of the declared entities.
func (e Entity) Valid() bool {
	return e == EntityAddresses || e == EntityTransactions
}

// Collection returns the collection name, or "" for an invalid entity.
func (e Entity) Collection() string {
	switch e {
	case EntityAddresses:
		return CollectionAddresses
	case EntityTransactions:
		return CollectionTransactions
	default:
		return ""
	}
}

func (e Entity) String() string {
	if name := e.Collection(); name != "" {
		return name
	}
	return fmt.Sprintf("Entity(%d)", int(e))
}
