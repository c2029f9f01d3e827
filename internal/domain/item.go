package domain

import "strings"

// Item is a stock-keeping unit known to the facility
type Item struct {
	SKU         string `bson:"sku" json:"sku"`
	GTIN        string `bson:"gtin,omitempty" json:"gtin,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	DefaultUOM  string `bson:"defaultUom" json:"defaultUom"`
}

// StockLocation records where inventory for an item lives
type StockLocation struct {
	SKU           string `bson:"sku" json:"sku"`
	LocationAlias string `bson:"locationAlias" json:"locationAlias"`
	Qty           int    `bson:"qty" json:"qty"`
	OffsetCm      int    `bson:"offsetCm,omitempty" json:"offsetCm,omitempty"`
}

// Inventory is the in-memory view of item and stock-location records loaded
// for a resolve call. The import service owns the authoritative records.
type Inventory struct {
	Items          map[string]Item            // keyed by SKU
	StockLocations map[string][]StockLocation // keyed by SKU
}

// NewInventory creates an empty inventory view
func NewInventory() *Inventory {
	return &Inventory{
		Items:          make(map[string]Item),
		StockLocations: make(map[string][]StockLocation),
	}
}

// ItemBySKU looks up an item
func (inv *Inventory) ItemBySKU(sku string) (Item, bool) {
	item, ok := inv.Items[sku]
	return item, ok
}

// ItemByGTIN looks up an item by its GTIN barcode
func (inv *Inventory) ItemByGTIN(gtin string) (Item, bool) {
	for _, item := range inv.Items {
		if item.GTIN != "" && item.GTIN == gtin {
			return item, true
		}
	}
	return Item{}, false
}

// ItemsByPrefix returns items whose SKU starts with the given prefix
func (inv *Inventory) ItemsByPrefix(prefix string) []Item {
	var out []Item
	for _, item := range inv.Items {
		if strings.HasPrefix(item.SKU, prefix) {
			out = append(out, item)
		}
	}
	return out
}

// StockFor returns the stock locations for an item
func (inv *Inventory) StockFor(sku string) []StockLocation {
	return inv.StockLocations[sku]
}

// AddItem registers an item
func (inv *Inventory) AddItem(item Item) {
	inv.Items[item.SKU] = item
}

// AddStock registers a stock location for an item
func (inv *Inventory) AddStock(stock StockLocation) {
	inv.StockLocations[stock.SKU] = append(inv.StockLocations[stock.SKU], stock)
}
