package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseState uint8

const (
	PurchaseStateUnspecified PurchaseState = iota
	PurchaseStatePurchased
	PurchaseStatePending
)

// Purchase is an owned entitlement as reported by the billing backend.
type Purchase struct {
	OrderID       string
	PackageName   string
	Skus          []string
	PurchaseTime  time.Time
	PurchaseToken string
	State         PurchaseState
	Acknowledged  bool
	AutoRenewing  bool
	OriginalJSON  string
	Signature     string
}

func (p *Purchase) Clone() *Purchase {
	return &Purchase{
		OrderID:       p.OrderID,
		PackageName:   p.PackageName,
		Skus:          append([]string(nil), p.Skus...),
		PurchaseTime:  p.PurchaseTime,
		PurchaseToken: p.PurchaseToken,
		State:         p.State,
		Acknowledged:  p.Acknowledged,
		AutoRenewing:  p.AutoRenewing,
		OriginalJSON:  p.OriginalJSON,
		Signature:     p.Signature,
	}
}

// SkuDetails is the catalog metadata the backend resolves for a product id.
type SkuDetails struct {
	Sku                string
	Type               SkuType
	Title              string
	Description        string
	Price              string
	PriceAmountMicros  int64
	PriceCurrencyCode  string
	SubscriptionPeriod string
	OriginalJSON       string
}

// PriceAmount converts the backend's micro-unit price into a decimal amount.
func (d *SkuDetails) PriceAmount() decimal.Decimal {
	return decimal.New(d.PriceAmountMicros, -6)
}

func (d *SkuDetails) Clone() *SkuDetails {
	cloned := *d
	return &cloned
}

// PurchaseHistoryRecord is the most recent purchase of a product, regardless
// of whether it is still owned.
type PurchaseHistoryRecord struct {
	Skus          []string
	PurchaseTime  time.Time
	PurchaseToken string
	OriginalJSON  string
	Signature     string
}

func (r *PurchaseHistoryRecord) Clone() *PurchaseHistoryRecord {
	return &PurchaseHistoryRecord{
		Skus:          append([]string(nil), r.Skus...),
		PurchaseTime:  r.PurchaseTime,
		PurchaseToken: r.PurchaseToken,
		OriginalJSON:  r.OriginalJSON,
		Signature:     r.Signature,
	}
}
