package upstream

import "time"

// Movement is a single stock movement as reported by the inventory service.
// Sale and removal quantities are negative on the wire.
type Movement struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	StoreID      string    `json:"storeId"`
	MovementType string    `json:"movementType"`
	Quantity     int64     `json:"quantity"`
	UnitPrice    float64   `json:"unitPrice"`
	MovementDate time.Time `json:"movementDate"`
}

// InventoryItem is a current stock level row for a product at a store.
type InventoryItem struct {
	ProductID       string   `json:"productId"`
	StoreID         string   `json:"storeId"`
	CurrentQuantity int64    `json:"currentQuantity"`
	ReorderLevel    int64    `json:"reorderLevel"`
	ValueAtCost     float64  `json:"valueAtCost"`
	IsLowStock      bool     `json:"isLowStock"`
	Product         *Product `json:"product,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	SKU      string    `json:"sku"`
	Category *Category `json:"category,omitempty"`
}

type Address struct {
	City     string `json:"city"`
	Province string `json:"province"`
}

type StoreInfo struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Code    string  `json:"code"`
	Address Address `json:"address"`
}

// User is the identity returned by the auth service on token verification.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// MovementsPage is the inventory service's envelope for GET /movements.
type MovementsPage struct {
	Data       []Movement  `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// InventoryPage is the inventory service's envelope for GET /inventory.
type InventoryPage struct {
	Data       []InventoryItem `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}
