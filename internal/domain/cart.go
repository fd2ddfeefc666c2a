package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Variant is a flat option mapping such as {"size": "M", "color": "red"}.
type Variant map[string]string

// ItemKey identifies a line item inside a cart: product id plus serialized variant.
type ItemKey string

type CartItem struct {
	ProductID         string          `bson:"product_id" json:"product_id"`
	Name              string          `bson:"name" json:"name"`
	UnitPrice         decimal.Decimal `bson:"unit_price" json:"unit_price"`
	OriginalUnitPrice decimal.Decimal `bson:"original_unit_price" json:"original_unit_price"`
	Quantity          int             `bson:"quantity" json:"quantity"`
	VendorID          string          `bson:"vendor_id,omitempty" json:"vendor_id,omitempty"`
	VendorName        string          `bson:"vendor_name,omitempty" json:"vendor_name,omitempty"`
	SelectedVariant   Variant         `bson:"selected_variant,omitempty" json:"selected_variant,omitempty"`
	AddedAt           time.Time       `bson:"added_at" json:"added_at"`
}

// Key serializes the variant with sorted keys, so equal variants always produce equal keys.
func (i CartItem) Key() ItemKey {
	return NewItemKey(i.ProductID, i.SelectedVariant)
}

func NewItemKey(productID string, variant Variant) ItemKey {
	variant = variant.Sanitize()
	if len(variant) == 0 {
		return ItemKey(productID)
	}
	// encoding/json writes map keys in sorted order
	b, _ := json.Marshal(variant)
	return ItemKey(productID + "#" + string(b))
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Sanitize drops entries without a value; nil when nothing is left.
func (v Variant) Sanitize() Variant {
	if len(v) == 0 {
		return nil
	}
	out := make(Variant, len(v))
	for k, val := range v {
		if k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Sanitize returns a copy of the item with no absent-valued fields, ready for a durable write.
func (i CartItem) Sanitize() CartItem {
	i.SelectedVariant = i.SelectedVariant.Sanitize()
	if i.OriginalUnitPrice.IsZero() {
		i.OriginalUnitPrice = i.UnitPrice
	}
	if i.AddedAt.IsZero() {
		i.AddedAt = time.Now().UTC()
	}
	return i
}

// maxMergedGuests bounds how many merged guest carts a cart remembers.
const maxMergedGuests = 20

// Cart is the document persisted per identity. ID is the owning identity id.
// MergedGuests names the guest carts already folded into this cart, most recent last.
type Cart struct {
	ID           string     `bson:"_id" json:"id"`
	Items        []CartItem `bson:"items" json:"items"`
	Revision     int64      `bson:"revision" json:"revision"`
	LastModified time.Time  `bson:"last_modified" json:"last_modified"`
	MergedGuests []string   `bson:"merged_guests,omitempty" json:"merged_guests,omitempty"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) HasMergedGuest(marker string) bool {
	if c == nil {
		return false
	}
	for _, t := range c.MergedGuests {
		if t == marker {
			return true
		}
	}
	return false
}

// WithMergedGuest returns a copy of MergedGuests with marker appended, keeping the newest entries.
func (c *Cart) WithMergedGuest(marker string) []string {
	var out []string
	if c != nil {
		out = append(out, c.MergedGuests...)
	}
	out = append(out, marker)
	if len(out) > maxMergedGuests {
		out = out[len(out)-maxMergedGuests:]
	}
	return out
}

// CloneItems deep-copies items, variants included.
func CloneItems(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	out := make([]CartItem, len(items))
	for i, item := range items {
		if item.SelectedVariant != nil {
			v := make(Variant, len(item.SelectedVariant))
			for k, val := range item.SelectedVariant {
				v[k] = val
			}
			item.SelectedVariant = v
		}
		out[i] = item
	}
	return out
}

// Subtotal is Σ unitPrice·quantity.
func Subtotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Product is the catalog view needed to snapshot a line item.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	SalePrice  decimal.NullDecimal
	VendorID   string
	VendorName string
}

// EffectivePrice is the sale price when present, else the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.IsPositive() {
		return p.SalePrice.Decimal
	}
	return p.Price
}
