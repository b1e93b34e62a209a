package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-billing/billing"
)

func TestBackend(t *testing.T) {
	backend := NewBackend(zap.NewNop(), "xyz.flipchat.app")
	teardown := func() {
		backend.Wait()
		backend.reset()
	}

	for _, tf := range []func(t *testing.T, b *Backend){
		testDisconnectedRejects,
		testCatalogLookup,
		testScriptedCodes,
		testCompletePurchase,
		testReplaceSubscription,
	} {
		connect(t, backend)
		tf(t, backend)
		teardown()
	}
}

type setupListener chan billing.ResponseCode

func (l setupListener) OnBillingSetupFinished(code billing.ResponseCode) {
	l <- code
}

func (l setupListener) OnBillingServiceDisconnected() {}

func connect(t *testing.T, b *Backend) {
	setup := make(setupListener, 1)
	b.StartConnection(setup)
	require.Equal(t, billing.OK, <-setup)
	require.True(t, b.IsReady())
}

func testDisconnectedRejects(t *testing.T, b *Backend) {
	b.AddProduct(&billing.SkuDetails{Sku: "gold_pack", Type: billing.SkuTypeInApp})
	b.AddPurchase(billing.SkuTypeInApp, &billing.Purchase{PurchaseToken: "gold-token", Skus: []string{"gold_pack"}})
	b.EndConnection()
	require.False(t, b.IsReady())

	codes := make(chan billing.ResponseCode, 6)
	b.QueryPurchases(billing.SkuTypeInApp, func(code billing.ResponseCode, purchases []*billing.Purchase) {
		assert.Empty(t, purchases)
		codes <- code
	})
	b.QuerySkuDetails(billing.SkuDetailsParams{Skus: []string{"gold_pack"}, Type: billing.SkuTypeInApp}, func(code billing.ResponseCode, details []*billing.SkuDetails) {
		assert.Empty(t, details)
		codes <- code
	})
	b.QueryPurchaseHistory(billing.SkuTypeInApp, func(code billing.ResponseCode, records []*billing.PurchaseHistoryRecord) {
		assert.Empty(t, records)
		codes <- code
	})
	b.Consume("gold-token", func(code billing.ResponseCode, _ string) { codes <- code })
	b.Acknowledge("gold-token", func(code billing.ResponseCode) { codes <- code })
	b.LaunchBillingFlow(nil, billing.FlowParams{}, func(code billing.ResponseCode) { codes <- code })

	for i := 0; i < 6; i++ {
		assert.Equal(t, billing.ServiceDisconnected, <-codes)
	}
	assert.Empty(t, b.Launches())
	assert.Empty(t, b.SkuQueries())
	assert.Empty(t, b.Consumed())
	assert.Empty(t, b.Acknowledged())

	// Nothing was consumed while disconnected.
	connect(t, b)
	done := make(chan []*billing.Purchase, 1)
	b.QueryPurchases(billing.SkuTypeInApp, func(_ billing.ResponseCode, purchases []*billing.Purchase) {
		done <- purchases
	})
	assert.Len(t, <-done, 1)
}

func testCatalogLookup(t *testing.T, b *Backend) {
	b.AddProduct(&billing.SkuDetails{Sku: "gold_pack", Type: billing.SkuTypeInApp})
	b.AddProduct(&billing.SkuDetails{Sku: "silver_pack", Type: billing.SkuTypeInApp})

	done := make(chan []*billing.SkuDetails, 1)
	b.QuerySkuDetails(billing.SkuDetailsParams{
		Skus: []string{"silver_pack", "bronze_pack", "gold_pack"},
		Type: billing.SkuTypeInApp,
	}, func(code billing.ResponseCode, details []*billing.SkuDetails) {
		assert.Equal(t, billing.OK, code)
		done <- details
	})

	details := <-done
	require.Len(t, details, 2)
	assert.Equal(t, "silver_pack", details[0].Sku)
	assert.Equal(t, "gold_pack", details[1].Sku)
}

func testScriptedCodes(t *testing.T, b *Backend) {
	b.SetResponseCode(OpLaunchBillingFlow, billing.UserCanceled)

	done := make(chan billing.ResponseCode, 1)
	b.LaunchBillingFlow(nil, billing.FlowParams{}, func(code billing.ResponseCode) {
		done <- code
	})

	assert.Equal(t, billing.UserCanceled, <-done)
	assert.Len(t, b.Launches(), 1)
}

func testCompletePurchase(t *testing.T, b *Backend) {
	var updates [][]*billing.Purchase
	b.SetPurchasesUpdatedListener(billing.PurchasesUpdatedListenerFunc(func(code billing.ResponseCode, purchases []*billing.Purchase) {
		require.Equal(t, billing.OK, code)
		updates = append(updates, purchases)
	}))

	_, err := b.CompletePurchase(Launch{})
	require.Error(t, err)

	purchase, err := b.CompletePurchase(Launch{Params: billing.FlowParams{
		SkuDetails: &billing.SkuDetails{Sku: "gold_pack", Type: billing.SkuTypeInApp},
	}})
	require.NoError(t, err)
	assert.Equal(t, "xyz.flipchat.app", purchase.PackageName)
	assert.Equal(t, billing.PurchaseStatePurchased, purchase.State)
	assert.NotEmpty(t, purchase.PurchaseToken)
	assert.False(t, purchase.AutoRenewing)

	require.Len(t, updates, 1)
	require.Len(t, updates[0], 1)
	assert.Equal(t, purchase.PurchaseToken, updates[0][0].PurchaseToken)
}

func testReplaceSubscription(t *testing.T, b *Backend) {
	b.AddPurchase(billing.SkuTypeSubs, &billing.Purchase{PurchaseToken: "monthly-token", Skus: []string{"premium_monthly"}})

	purchase, err := b.CompletePurchase(Launch{Params: billing.FlowParams{
		SkuDetails:       &billing.SkuDetails{Sku: "premium_yearly", Type: billing.SkuTypeSubs},
		OldSku:           "premium_monthly",
		OldPurchaseToken: "monthly-token",
	}})
	require.NoError(t, err)
	assert.True(t, purchase.AutoRenewing)

	done := make(chan []*billing.Purchase, 1)
	b.QueryPurchases(billing.SkuTypeSubs, func(_ billing.ResponseCode, purchases []*billing.Purchase) {
		done <- purchases
	})

	owned := <-done
	require.Len(t, owned, 1)
	assert.Equal(t, purchase.PurchaseToken, owned[0].PurchaseToken)
}
