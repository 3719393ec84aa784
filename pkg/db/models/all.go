package models

// All lists every model in dependency order, for AutoMigrate in dev and tests.
func All() []any {
	return []any{
		&Seller{},
		&User{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Shipment{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
