package helpers

import (
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
)

// SellerPartition is the slice of a checkout snapshot that becomes one order.
type SellerPartition struct {
	SellerID   uuid.UUID
	Lines      []cart.Line
	TotalCents int64
	ItemCount  int
}

// ProductIDs lists the products in the partition in snapshot order.
func (p SellerPartition) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Lines))
	for _, line := range p.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// PartitionBySeller groups snapshot lines by seller. Partitions come back in
// ascending seller id order so orders are always created in the same order.
func PartitionBySeller(lines []cart.Line) []SellerPartition {
	index := make(map[uuid.UUID]int, len(lines))
	var partitions []SellerPartition
	for _, line := range lines {
		i, ok := index[line.SellerID]
		if !ok {
			i = len(partitions)
			index[line.SellerID] = i
			partitions = append(partitions, SellerPartition{SellerID: line.SellerID})
		}
		p := &partitions[i]
		p.Lines = append(p.Lines, line)
		p.TotalCents += line.SubtotalCents()
		p.ItemCount += line.Quantity
	}
	sort.Slice(partitions, func(a, b int) bool {
		return partitions[a].SellerID.String() < partitions[b].SellerID.String()
	})
	return partitions
}

// ProductIDs lists every product across the snapshot.
func ProductIDs(lines []cart.Line) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
