package cart

import cartsvc "github.com/angelmondragon/marketplace-checkout/internal/cart"

type cartListing struct {
	Sellers    []cartsvc.SellerGroup `json:"sellers"`
	TotalItems int                   `json:"totalItems"`
}

func newCartListing(groups []cartsvc.SellerGroup) cartListing {
	listing := cartListing{Sellers: groups}
	for _, group := range groups {
		listing.TotalItems += group.Quantity
	}
	return listing
}
