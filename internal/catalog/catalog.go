// Package catalog resolves dataset identifiers to descriptors stored in a
// metacatalog database. The catalog is only ever read.
package catalog

import (
	"context"
	"errors"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

var ErrNotFound = errors.New("entry not found")

// Resolver maps one dataset identifier to its descriptor.
type Resolver interface {
	Resolve(ctx context.Context, id int64) (domain.Descriptor, error)
}
