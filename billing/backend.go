package billing

// UIHost is the caller's on-screen context the backend needs to show its
// purchase UI. The gateway only forwards it.
type UIHost interface{}

// Backend is the vendor billing client. Every callback may fire on a
// backend-owned goroutine and is expected to fire exactly once per call.
type Backend interface {
	// SetPurchasesUpdatedListener registers the listener that receives every
	// purchase update for the lifetime of the client.
	SetPurchasesUpdatedListener(l PurchasesUpdatedListener)

	StartConnection(l StateListener)
	EndConnection()
	IsReady() bool

	QueryPurchases(skuType SkuType, cb func(ResponseCode, []*Purchase))
	QuerySkuDetails(params SkuDetailsParams, cb func(ResponseCode, []*SkuDetails))
	QueryPurchaseHistory(skuType SkuType, cb func(ResponseCode, []*PurchaseHistoryRecord))

	// Consume marks a consumable purchase as used. The callback echoes the
	// backend's purchase token.
	Consume(purchaseToken string, cb func(ResponseCode, string))
	Acknowledge(purchaseToken string, cb func(ResponseCode))

	// LaunchBillingFlow reports whether the purchase UI launched, not whether
	// the purchase completed.
	LaunchBillingFlow(host UIHost, params FlowParams, cb func(ResponseCode))
}

type SkuDetailsParams struct {
	Skus []string
	Type SkuType
}

type ProrationMode uint8

const (
	ProrationModeUnspecified ProrationMode = iota
	ProrationModeImmediateWithTimeProration
	ProrationModeImmediateAndChargeProratedPrice
	ProrationModeImmediateWithoutProration
	ProrationModeDeferred
	ProrationModeImmediateAndChargeFullPrice
)

// FlowParams describes a purchase flow. OldSku and OldPurchaseToken are only
// set when replacing an existing subscription.
type FlowParams struct {
	SkuDetails          *SkuDetails
	OldSku              string
	OldPurchaseToken    string
	ProrationMode       ProrationMode
	ObfuscatedAccountID string
}

type FlowOption func(*FlowParams)

func WithProrationMode(mode ProrationMode) FlowOption {
	return func(p *FlowParams) {
		p.ProrationMode = mode
	}
}

// WithObfuscatedAccountID attaches an opaque account identifier to the flow,
// which the backend returns on the resulting purchase.
func WithObfuscatedAccountID(id string) FlowOption {
	return func(p *FlowParams) {
		p.ObfuscatedAccountID = id
	}
}

type PurchasesUpdatedListener interface {
	OnPurchasesUpdated(code ResponseCode, purchases []*Purchase)
}

// PurchasesUpdatedListenerFunc is an adapter to allow the use of ordinary
// functions as PurchasesUpdatedListeners.
type PurchasesUpdatedListenerFunc func(ResponseCode, []*Purchase)

// OnPurchasesUpdated calls f(code, purchases).
func (f PurchasesUpdatedListenerFunc) OnPurchasesUpdated(code ResponseCode, purchases []*Purchase) {
	f(code, purchases)
}

type StateListener interface {
	OnBillingSetupFinished(code ResponseCode)

	// OnBillingServiceDisconnected may fire at any time after StartConnection
	// without being requested.
	OnBillingServiceDisconnected()
}
