package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-billing/event"
)

// Gateway adapts a callback-based billing Backend into blocking calls that
// return outcomes and into event streams.
type Gateway struct {
	log     *zap.Logger
	backend Backend
	cfg     Config

	updates *event.Bus[PurchasesUpdate]
}

func NewGateway(log *zap.Logger, backend Backend, cfg Config) *Gateway {
	if backend == nil {
		panic("billing: nil backend")
	}

	g := &Gateway{
		log:     log,
		backend: backend,
		cfg:     cfg,
		updates: event.NewBus[PurchasesUpdate](log, cfg.SubscriberBuffer, cfg.NotifyTimeout),
	}
	backend.SetPurchasesUpdatedListener(PurchasesUpdatedListenerFunc(g.onPurchasesUpdated))

	return g
}

func (g *Gateway) onPurchasesUpdated(code ResponseCode, purchases []*Purchase) {
	g.updates.Publish(listOutcome(code, purchases))
}

// IsReady reports whether the backend is connected.
func (g *Gateway) IsReady() bool {
	return g.backend.IsReady()
}

// Connect starts the handshake with the backend. The returned stream gets one
// Connected or Failed event for the handshake and a Disconnected event each
// time the backend later drops the connection. It never closes on its own.
func (g *Gateway) Connect() *event.Stream[ConnectionEvent] {
	stream := event.NewStream[ConnectionEvent](uuid.NewString(), g.cfg.SubscriberBuffer)
	g.backend.StartConnection(&connectionListener{
		log:     g.log.With(zap.String("connection_stream", stream.ID())),
		stream:  stream,
		timeout: g.cfg.NotifyTimeout,
	})
	return stream
}

// EndConnection releases the backend connection. Calls made afterwards are
// rejected by the backend until Connect succeeds again.
func (g *Gateway) EndConnection() {
	g.backend.EndConnection()
}

// PurchaseUpdates subscribes to every purchase update the backend pushes from
// now on, whether caused by a flow launched here or not.
func (g *Gateway) PurchaseUpdates() *event.Stream[PurchasesUpdate] {
	return g.updates.Subscribe()
}

// Close ends every purchase update subscription. The backend connection is
// left untouched.
func (g *Gateway) Close() {
	g.updates.Close()
}

func (g *Gateway) QueryInAppPurchases(ctx context.Context) (PurchasesResult, error) {
	return g.queryPurchases(ctx, SkuTypeInApp)
}

func (g *Gateway) QuerySubscriptionPurchases(ctx context.Context) (PurchasesResult, error) {
	return g.queryPurchases(ctx, SkuTypeSubs)
}

func (g *Gateway) queryPurchases(ctx context.Context, skuType SkuType) (PurchasesResult, error) {
	p := newPending[PurchasesResult](g.callLog("query_purchases", skuType))
	g.backend.QueryPurchases(skuType, func(code ResponseCode, purchases []*Purchase) {
		p.resolve(listOutcome(code, purchases))
	})
	return p.wait(ctx)
}

// QueryInAppSkuDetails resolves catalog metadata for skus. The list is handed
// to the backend as is; the result keeps the backend's order and may omit
// unknown skus.
func (g *Gateway) QueryInAppSkuDetails(ctx context.Context, skus []string) (SkuDetailsResult, error) {
	return g.querySkuDetails(ctx, SkuTypeInApp, skus)
}

func (g *Gateway) QuerySubscriptionsSkuDetails(ctx context.Context, skus []string) (SkuDetailsResult, error) {
	return g.querySkuDetails(ctx, SkuTypeSubs, skus)
}

func (g *Gateway) querySkuDetails(ctx context.Context, skuType SkuType, skus []string) (SkuDetailsResult, error) {
	p := newPending[SkuDetailsResult](g.callLog("query_sku_details", skuType))
	params := SkuDetailsParams{Skus: skus, Type: skuType}
	g.backend.QuerySkuDetails(params, func(code ResponseCode, details []*SkuDetails) {
		p.resolve(listOutcome(code, details))
	})
	return p.wait(ctx)
}

func (g *Gateway) QueryInAppPurchaseHistory(ctx context.Context) (PurchaseHistoryResult, error) {
	return g.queryPurchaseHistory(ctx, SkuTypeInApp)
}

func (g *Gateway) QuerySubscriptionPurchaseHistory(ctx context.Context) (PurchaseHistoryResult, error) {
	return g.queryPurchaseHistory(ctx, SkuTypeSubs)
}

func (g *Gateway) queryPurchaseHistory(ctx context.Context, skuType SkuType) (PurchaseHistoryResult, error) {
	p := newPending[PurchaseHistoryResult](g.callLog("query_purchase_history", skuType))
	g.backend.QueryPurchaseHistory(skuType, func(code ResponseCode, records []*PurchaseHistoryRecord) {
		p.resolve(listOutcome(code, records))
	})
	return p.wait(ctx)
}

// ConsumeItem marks a consumable purchase as used so it can be bought again.
// The success payload is the token echoed by the backend.
func (g *Gateway) ConsumeItem(ctx context.Context, purchaseToken string) (ConsumeResult, error) {
	p := newPending[ConsumeResult](g.log.With(zap.String("call", "consume")))
	g.backend.Consume(purchaseToken, func(code ResponseCode, outToken string) {
		if code != OK {
			p.resolve(Failure[string](code))
			return
		}
		p.resolve(Success(outToken))
	})
	return p.wait(ctx)
}

func (g *Gateway) AcknowledgePurchase(ctx context.Context, purchaseToken string) (PurchaseResult, error) {
	p := newPending[PurchaseResult](g.log.With(zap.String("call", "acknowledge")))
	g.backend.Acknowledge(purchaseToken, func(code ResponseCode) {
		p.resolve(launchOutcome(code))
	})
	return p.wait(ctx)
}

// PurchaseItem looks up sku in the in-app catalog and launches the purchase
// flow for it. A *ProductNotFoundError or *QueryFailedError is returned when
// the lookup does not yield a product; the flow is not launched then.
//
// Success means the flow launched. The purchase itself is reported on
// PurchaseUpdates.
func (g *Gateway) PurchaseItem(ctx context.Context, sku string, host UIHost, opts ...FlowOption) (PurchaseResult, error) {
	return g.purchaseBySku(ctx, SkuTypeInApp, sku, host, opts)
}

func (g *Gateway) PurchaseSubscription(ctx context.Context, sku string, host UIHost, opts ...FlowOption) (PurchaseResult, error) {
	return g.purchaseBySku(ctx, SkuTypeSubs, sku, host, opts)
}

func (g *Gateway) purchaseBySku(ctx context.Context, skuType SkuType, sku string, host UIHost, opts []FlowOption) (PurchaseResult, error) {
	details, err := g.resolveSku(ctx, skuType, sku)
	if err != nil {
		return PurchaseResult{}, err
	}
	return g.PurchaseSku(ctx, details, host, opts...)
}

// PurchaseSku launches the purchase flow for already resolved details.
func (g *Gateway) PurchaseSku(ctx context.Context, details *SkuDetails, host UIHost, opts ...FlowOption) (PurchaseResult, error) {
	if details == nil {
		return PurchaseResult{}, ErrNilSkuDetails
	}

	params := FlowParams{SkuDetails: details}
	return g.launch(ctx, host, params, opts)
}

// ReplaceSubscription launches an upgrade or downgrade from the subscription
// identified by oldSku and oldPurchaseToken to newDetails.
func (g *Gateway) ReplaceSubscription(
	ctx context.Context,
	oldSku string,
	oldPurchaseToken string,
	newDetails *SkuDetails,
	host UIHost,
	opts ...FlowOption,
) (PurchaseResult, error) {
	if newDetails == nil {
		return PurchaseResult{}, ErrNilSkuDetails
	}

	params := FlowParams{
		SkuDetails:       newDetails,
		OldSku:           oldSku,
		OldPurchaseToken: oldPurchaseToken,
	}
	return g.launch(ctx, host, params, opts)
}

// ReplaceSubscriptionBySku resolves newSku in the subscription catalog before
// launching the replacement flow, failing locally like PurchaseSubscription.
func (g *Gateway) ReplaceSubscriptionBySku(
	ctx context.Context,
	oldSku string,
	newSku string,
	oldPurchaseToken string,
	host UIHost,
	opts ...FlowOption,
) (PurchaseResult, error) {
	details, err := g.resolveSku(ctx, SkuTypeSubs, newSku)
	if err != nil {
		return PurchaseResult{}, err
	}
	return g.ReplaceSubscription(ctx, oldSku, oldPurchaseToken, details, host, opts...)
}

func (g *Gateway) launch(ctx context.Context, host UIHost, params FlowParams, opts []FlowOption) (PurchaseResult, error) {
	for _, opt := range opts {
		opt(&params)
	}

	log := g.log.With(
		zap.String("call", "launch_billing_flow"),
		zap.String("sku", params.SkuDetails.Sku),
	)
	if params.OldSku != "" {
		log = log.With(zap.String("old_sku", params.OldSku))
	}

	p := newPending[PurchaseResult](log)
	g.backend.LaunchBillingFlow(host, params, func(code ResponseCode) {
		p.resolve(launchOutcome(code))
	})
	return p.wait(ctx)
}

// resolveSku returns the first record the backend resolves for sku.
func (g *Gateway) resolveSku(ctx context.Context, skuType SkuType, sku string) (*SkuDetails, error) {
	result, err := g.querySkuDetails(ctx, skuType, []string{sku})
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		return nil, &QueryFailedError{Sku: sku, Type: skuType, Code: result.Code()}
	}

	details := result.Payload()
	if len(details) == 0 {
		return nil, &ProductNotFoundError{Sku: sku, Type: skuType}
	}
	return details[0], nil
}

func (g *Gateway) callLog(call string, skuType SkuType) *zap.Logger {
	return g.log.With(zap.String("call", call), zap.String("sku_type", skuType.String()))
}

// connectionListener turns one StartConnection's callbacks into stream events.
// A disconnect reported before the handshake resolves is delivered right
// after the handshake event.
type connectionListener struct {
	log     *zap.Logger
	stream  *event.Stream[ConnectionEvent]
	timeout time.Duration

	mu              sync.Mutex
	resolved        bool
	heldDisconnects int
}

func (l *connectionListener) OnBillingSetupFinished(code ResponseCode) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resolved {
		l.log.Warn("Ignoring repeated setup completion from billing backend", zap.Stringer("code", code))
		return
	}
	l.resolved = true

	l.emit(setupEvent(code))
	for ; l.heldDisconnects > 0; l.heldDisconnects-- {
		l.emit(ConnectionEvent{Status: ConnectionStatusDisconnected})
	}
}

func (l *connectionListener) OnBillingServiceDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.resolved {
		l.heldDisconnects++
		return
	}
	l.emit(ConnectionEvent{Status: ConnectionStatusDisconnected})
}

func (l *connectionListener) emit(e ConnectionEvent) {
	if err := l.stream.Notify(e, l.timeout); err != nil {
		l.log.Debug("Dropping connection event", zap.Stringer("event", e), zap.Error(err))
	}
}
