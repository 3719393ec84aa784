package cart

import (
	"context"
	"iter"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// View is a read-only listing of a user's cart grouped by seller. Nothing
// is queried until it is ranged over, and each range starts a fresh query,
// so a View can be iterated any number of times.
type View struct {
	repo   *Repository
	userID uuid.UUID
}

// All yields one SellerGroup per seller in ascending seller id order. A
// query failure is yielded once as the error and ends the sequence.
func (v View) All(ctx context.Context) iter.Seq2[SellerGroup, error] {
	return func(yield func(SellerGroup, error) bool) {
		var (
			current *SellerGroup
			stopped bool
		)
		err := v.repo.StreamLines(ctx, v.userID, func(line Line) bool {
			if current != nil && current.SellerID != line.SellerID {
				if !yield(*current, nil) {
					stopped = true
					return false
				}
				current = nil
			}
			if current == nil {
				current = &SellerGroup{SellerID: line.SellerID, SellerName: line.SellerName}
			}
			current.add(line)
			return true
		})
		if stopped {
			return
		}
		if err != nil {
			yield(SellerGroup{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items"))
			return
		}
		if current != nil {
			yield(*current, nil)
		}
	}
}

// Collect drains the view into a slice.
func (v View) Collect(ctx context.Context) ([]SellerGroup, error) {
	groups := []SellerGroup{}
	for group, err := range v.All(ctx) {
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}
