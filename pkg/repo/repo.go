// Package repo provides a generic Neo4j-backed repository used for paper
// metadata listing and administrative lookups.
package repo

import "context"

// Repository is a generic CRUD interface.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Save(ctx context.Context, entity T) error
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination for List.
type ListOpts struct {
	Offset int
	Limit  int
}
