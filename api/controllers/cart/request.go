package cart

import "github.com/google/uuid"

type addItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// quantity zero removes the line
type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}
