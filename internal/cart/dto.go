package cart

import "github.com/google/uuid"

// Totals is what every cart mutation reports back.
type Totals struct {
	TotalItems int `json:"totalItems"`
}

// Line is one cart item joined with the current catalog row. The checkout
// snapshot and the listing view are both built from it.
type Line struct {
	CartID      uuid.UUID `gorm:"column:cart_id"`
	SellerID    uuid.UUID `gorm:"column:seller_id"`
	SellerName  string    `gorm:"column:seller_name"`
	ProductID   uuid.UUID `gorm:"column:product_id"`
	ProductName string    `gorm:"column:product_name"`
	PriceCents  int64     `gorm:"column:price_cents"`
	Quantity    int       `gorm:"column:quantity"`
	Stock       int       `gorm:"column:stock"`
	Visible     bool      `gorm:"column:visible"`
}

// SubtotalCents is quantity times the current price.
func (l Line) SubtotalCents() int64 {
	return int64(l.Quantity) * l.PriceCents
}

// Item is the read-side shape of a cart line.
type Item struct {
	ProductID     uuid.UUID `json:"productId"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"price"`
	Quantity      int       `json:"quantity"`
	SubtotalCents int64     `json:"subtotal"`
	Stock         int       `json:"stock"`
	Available     bool      `json:"available"`
}

// SellerGroup is every item the user holds from one seller.
type SellerGroup struct {
	SellerID      uuid.UUID `json:"sellerId"`
	SellerName    string    `json:"sellerName"`
	Items         []Item    `json:"items"`
	Quantity      int       `json:"quantity"`
	SubtotalCents int64     `json:"subtotal"`
}

func (g *SellerGroup) add(l Line) {
	g.Items = append(g.Items, Item{
		ProductID:     l.ProductID,
		Name:          l.ProductName,
		PriceCents:    l.PriceCents,
		Quantity:      l.Quantity,
		SubtotalCents: l.SubtotalCents(),
		Stock:         l.Stock,
		Available:     l.Visible && l.Stock >= l.Quantity,
	})
	g.Quantity += l.Quantity
	g.SubtotalCents += l.SubtotalCents()
}
