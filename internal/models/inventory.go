package models

import "time"

// PhysicalState is the condition of an inventoried item.
type PhysicalState string

const (
	PhysicalStateNew      PhysicalState = "novo"
	PhysicalStateUsed     PhysicalState = "usado"
	PhysicalStateDamaged  PhysicalState = "danificado"
	PhysicalStateObsolete PhysicalState = "obsoleto"
)

// Valid reports whether s is a known state.
func (s PhysicalState) Valid() bool {
	switch s {
	case PhysicalStateNew, PhysicalStateUsed, PhysicalStateDamaged, PhysicalStateObsolete:
		return true
	}
	return false
}

// Photo is an image attached to an item. URL is usually a data URL.
type Photo struct {
	ID   UUID   `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// InventoryItem is one counted line of an inventory.
type InventoryItem struct {
	ID            UUID          `json:"id"`
	Barcode       string        `json:"barcode"`
	Description   string        `json:"description"`
	Quantity      int           `json:"quantity"`
	Multiplier    int           `json:"multiplier"`
	TotalQuantity int           `json:"totalQuantity"`
	Location      string        `json:"location"`
	Unit          string        `json:"unit"`
	Manufacturer  string        `json:"manufacturer"`
	PhysicalState PhysicalState `json:"physicalState"`
	SerialNumber  string        `json:"serialNumber,omitempty"`
	Size          string        `json:"size,omitempty"`
	Observations  string        `json:"observations,omitempty"`
	Photos        []Photo       `json:"photos"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Normalize applies form defaults: a multiplier of 1 and the derived total.
func (i *InventoryItem) Normalize() {
	if i.Multiplier == 0 {
		i.Multiplier = 1
	}
	if i.Photos == nil {
		i.Photos = []Photo{}
	}
	i.TotalQuantity = i.Quantity * i.Multiplier
}

// Validate checks the fields required by the inventory form.
func (i *InventoryItem) Validate() error {
	var errs fieldErrors
	errs.require(!blank(i.Barcode), "barcode", "is required")
	errs.require(!blank(i.Description), "description", "is required")
	errs.require(i.Quantity >= 1, "quantity", "must be greater than 0")
	errs.require(i.Multiplier >= 1, "multiplier", "must be greater than 0")
	errs.require(!blank(i.Location), "location", "is required")
	errs.require(!blank(i.Unit), "unit", "is required")
	errs.require(!blank(i.Manufacturer), "manufacturer", "is required")
	errs.require(i.PhysicalState.Valid(), "physicalState", "must be novo, usado, danificado or obsoleto")
	return errs.err("inventory item")
}
