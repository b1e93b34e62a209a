package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-billing/billing"
)

// Op names a backend operation whose response code can be scripted.
type Op uint8

const (
	OpConnect Op = iota
	OpQueryPurchases
	OpQuerySkuDetails
	OpQueryPurchaseHistory
	OpConsume
	OpAcknowledge
	OpLaunchBillingFlow
)

// Launch records one LaunchBillingFlow call.
type Launch struct {
	Host   billing.UIHost
	Params billing.FlowParams
}

// Backend is an in-process billing.Backend for tests and local runs. It keeps
// a catalog, owned purchases and history per sku type, answers with scripted
// response codes and records the calls it receives. Callbacks fire on their
// own goroutine, like a vendor client's would. Until StartConnection succeeds,
// and after EndConnection or Disconnect, every call answers
// ServiceDisconnected.
//
// It does not move money or check anything a real backend would.
type Backend struct {
	log         *zap.Logger
	packageName string

	mu sync.Mutex

	ready    bool
	updates  billing.PurchasesUpdatedListener
	listener billing.StateListener

	codes        map[Op]billing.ResponseCode
	catalog      map[billing.SkuType][]*billing.SkuDetails
	skuResponses map[billing.SkuType][]*billing.SkuDetails
	owned        map[billing.SkuType][]*billing.Purchase
	history      map[billing.SkuType][]*billing.PurchaseHistoryRecord
	consumeToken string

	launches     []Launch
	skuQueries   []billing.SkuDetailsParams
	consumed     []string
	acknowledged []string

	wg sync.WaitGroup
}

func NewBackend(log *zap.Logger, packageName string) *Backend {
	return &Backend{
		log:          log,
		packageName:  packageName,
		codes:        map[Op]billing.ResponseCode{},
		catalog:      map[billing.SkuType][]*billing.SkuDetails{},
		skuResponses: map[billing.SkuType][]*billing.SkuDetails{},
		owned:        map[billing.SkuType][]*billing.Purchase{},
		history:      map[billing.SkuType][]*billing.PurchaseHistoryRecord{},
	}
}

// SetResponseCode makes every later call of op answer with code.
func (b *Backend) SetResponseCode(op Op, code billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.codes[op] = code
}

// AddProduct adds details to the catalog of its sku type.
func (b *Backend) AddProduct(details *billing.SkuDetails) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.catalog[details.Type] = append(b.catalog[details.Type], details.Clone())
}

// SetSkuDetailsResponse makes sku detail queries of skuType return details
// verbatim, whatever skus were asked for. A nil slice restores catalog lookup.
func (b *Backend) SetSkuDetailsResponse(skuType billing.SkuType, details []*billing.SkuDetails) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if details == nil {
		delete(b.skuResponses, skuType)
		return
	}
	b.skuResponses[skuType] = details
}

// AddPurchase records purchase as owned and adds it to the history.
func (b *Backend) AddPurchase(skuType billing.SkuType, purchase *billing.Purchase) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.addPurchaseLocked(skuType, purchase)
}

// SetConsumeToken overrides the token echoed by successful consumes. An empty
// token echoes the consumed one.
func (b *Backend) SetConsumeToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consumeToken = token
}

func (b *Backend) SetPurchasesUpdatedListener(l billing.PurchasesUpdatedListener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.updates = l
}

func (b *Backend) StartConnection(l billing.StateListener) {
	b.mu.Lock()
	code := b.codes[OpConnect]
	b.listener = l
	b.ready = code == billing.OK
	b.mu.Unlock()

	b.log.Debug("Starting connection", zap.Stringer("code", code))

	b.async(func() {
		l.OnBillingSetupFinished(code)
	})
}

func (b *Backend) EndConnection() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ready = false
	b.listener = nil
}

func (b *Backend) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ready
}

// Disconnect drops the connection as if the billing service went away and
// notifies the current connection listener on the calling goroutine.
func (b *Backend) Disconnect() {
	b.mu.Lock()
	b.ready = false
	l := b.listener
	b.mu.Unlock()

	if l != nil {
		l.OnBillingServiceDisconnected()
	}
}

func (b *Backend) QueryPurchases(skuType billing.SkuType, cb func(billing.ResponseCode, []*billing.Purchase)) {
	b.mu.Lock()
	code, ok := b.codeLocked(OpQueryPurchases)
	var purchases []*billing.Purchase
	if ok {
		for _, p := range b.owned[skuType] {
			purchases = append(purchases, p.Clone())
		}
	}
	b.mu.Unlock()

	b.async(func() { cb(code, purchases) })
}

func (b *Backend) QuerySkuDetails(params billing.SkuDetailsParams, cb func(billing.ResponseCode, []*billing.SkuDetails)) {
	b.mu.Lock()
	if b.ready {
		b.skuQueries = append(b.skuQueries, billing.SkuDetailsParams{
			Skus: append([]string(nil), params.Skus...),
			Type: params.Type,
		})
	}

	code, ok := b.codeLocked(OpQuerySkuDetails)
	var details []*billing.SkuDetails
	if ok {
		if scripted, found := b.skuResponses[params.Type]; found {
			details = scripted
		} else {
			details = b.lookupLocked(params)
		}
	}
	b.mu.Unlock()

	b.async(func() { cb(code, details) })
}

func (b *Backend) QueryPurchaseHistory(skuType billing.SkuType, cb func(billing.ResponseCode, []*billing.PurchaseHistoryRecord)) {
	b.mu.Lock()
	code, ok := b.codeLocked(OpQueryPurchaseHistory)
	var records []*billing.PurchaseHistoryRecord
	if ok {
		for _, r := range b.history[skuType] {
			records = append(records, r.Clone())
		}
	}
	b.mu.Unlock()

	b.async(func() { cb(code, records) })
}

func (b *Backend) Consume(purchaseToken string, cb func(billing.ResponseCode, string)) {
	b.mu.Lock()
	if b.ready {
		b.consumed = append(b.consumed, purchaseToken)
	}

	code, ok := b.codeLocked(OpConsume)
	outToken := purchaseToken
	if ok {
		if !b.removeOwnedLocked(billing.SkuTypeInApp, purchaseToken) {
			code = billing.ItemNotOwned
		} else if b.consumeToken != "" {
			outToken = b.consumeToken
		}
	}
	b.mu.Unlock()

	b.async(func() { cb(code, outToken) })
}

func (b *Backend) Acknowledge(purchaseToken string, cb func(billing.ResponseCode)) {
	b.mu.Lock()
	if b.ready {
		b.acknowledged = append(b.acknowledged, purchaseToken)
	}

	code, ok := b.codeLocked(OpAcknowledge)
	if ok {
		found := false
		for _, purchases := range b.owned {
			for _, p := range purchases {
				if p.PurchaseToken == purchaseToken {
					p.Acknowledged = true
					found = true
				}
			}
		}
		if !found {
			code = billing.ItemNotOwned
		}
	}
	b.mu.Unlock()

	b.async(func() { cb(code) })
}

func (b *Backend) LaunchBillingFlow(host billing.UIHost, params billing.FlowParams, cb func(billing.ResponseCode)) {
	b.mu.Lock()
	if b.ready {
		b.launches = append(b.launches, Launch{Host: host, Params: params})
	}
	code, _ := b.codeLocked(OpLaunchBillingFlow)
	b.mu.Unlock()

	b.async(func() { cb(code) })
}

// PushPurchasesUpdate delivers an update to the registered purchase listener
// on the calling goroutine.
func (b *Backend) PushPurchasesUpdate(code billing.ResponseCode, purchases []*billing.Purchase) {
	b.mu.Lock()
	l := b.updates
	b.mu.Unlock()

	if l == nil {
		b.log.Debug("Dropping purchase update, no listener registered")
		return
	}
	l.OnPurchasesUpdated(code, purchases)
}

// CompletePurchase finishes a launched flow: the product becomes owned, a
// replaced subscription is dropped and the new purchase is pushed to the
// purchase listener.
func (b *Backend) CompletePurchase(launch Launch) (*billing.Purchase, error) {
	details := launch.Params.SkuDetails
	if details == nil {
		return nil, fmt.Errorf("launch has no sku details")
	}

	purchase := &billing.Purchase{
		OrderID:       "GPA." + uuid.NewString(),
		PackageName:   b.packageName,
		Skus:          []string{details.Sku},
		PurchaseTime:  time.Now(),
		PurchaseToken: uuid.NewString(),
		State:         billing.PurchaseStatePurchased,
		AutoRenewing:  details.Type == billing.SkuTypeSubs,
	}

	b.mu.Lock()
	if launch.Params.OldPurchaseToken != "" {
		b.removeOwnedLocked(billing.SkuTypeSubs, launch.Params.OldPurchaseToken)
	}
	b.addPurchaseLocked(details.Type, purchase)
	b.mu.Unlock()

	b.PushPurchasesUpdate(billing.OK, []*billing.Purchase{purchase.Clone()})
	return purchase.Clone(), nil
}

// Wait blocks until every callback fired so far has returned.
func (b *Backend) Wait() {
	b.wg.Wait()
}

func (b *Backend) Launches() []Launch {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Launch(nil), b.launches...)
}

func (b *Backend) SkuQueries() []billing.SkuDetailsParams {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]billing.SkuDetailsParams(nil), b.skuQueries...)
}

func (b *Backend) Consumed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.consumed...)
}

func (b *Backend) Acknowledged() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.acknowledged...)
}

func (b *Backend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ready = false
	b.listener = nil
	b.updates = nil
	b.codes = map[Op]billing.ResponseCode{}
	b.catalog = map[billing.SkuType][]*billing.SkuDetails{}
	b.skuResponses = map[billing.SkuType][]*billing.SkuDetails{}
	b.owned = map[billing.SkuType][]*billing.Purchase{}
	b.history = map[billing.SkuType][]*billing.PurchaseHistoryRecord{}
	b.consumeToken = ""
	b.launches = nil
	b.skuQueries = nil
	b.consumed = nil
	b.acknowledged = nil
}

// codeLocked returns the code op answers with and whether it is OK. Calls
// made while not connected are rejected with ServiceDisconnected, whatever
// is scripted; rejected calls are not recorded.
func (b *Backend) codeLocked(op Op) (billing.ResponseCode, bool) {
	if !b.ready {
		return billing.ServiceDisconnected, false
	}

	code := b.codes[op]
	return code, code == billing.OK
}

func (b *Backend) lookupLocked(params billing.SkuDetailsParams) []*billing.SkuDetails {
	var details []*billing.SkuDetails
	for _, sku := range params.Skus {
		for _, d := range b.catalog[params.Type] {
			if d.Sku == sku {
				details = append(details, d.Clone())
				break
			}
		}
	}
	return details
}

func (b *Backend) addPurchaseLocked(skuType billing.SkuType, purchase *billing.Purchase) {
	b.owned[skuType] = append(b.owned[skuType], purchase.Clone())

	record := &billing.PurchaseHistoryRecord{
		Skus:          append([]string(nil), purchase.Skus...),
		PurchaseTime:  purchase.PurchaseTime,
		PurchaseToken: purchase.PurchaseToken,
		OriginalJSON:  purchase.OriginalJSON,
		Signature:     purchase.Signature,
	}

	// History keeps the latest purchase per sku.
	kept := b.history[skuType][:0]
	for _, r := range b.history[skuType] {
		if !sharesSku(r.Skus, record.Skus) {
			kept = append(kept, r)
		}
	}
	b.history[skuType] = append(kept, record)
}

func (b *Backend) removeOwnedLocked(skuType billing.SkuType, purchaseToken string) bool {
	purchases := b.owned[skuType]
	for i, p := range purchases {
		if p.PurchaseToken == purchaseToken {
			b.owned[skuType] = append(purchases[:i], purchases[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Backend) async(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func sharesSku(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
