package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/code-payments/flipchat-billing/billing"
)

// ParseCatalog parses a comma separated list of type:sku:micros:currency
// entries, e.g. "inapp:gold_pack:4990000:USD,subs:premium_monthly:9990000:USD".
func ParseCatalog(raw string) ([]*billing.SkuDetails, error) {
	var catalog []*billing.SkuDetails
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, errors.Errorf("invalid catalog entry %q", entry)
		}

		skuType := billing.SkuType(parts[0])
		if skuType != billing.SkuTypeInApp && skuType != billing.SkuTypeSubs {
			return nil, errors.Errorf("invalid sku type %q in catalog entry %q", parts[0], entry)
		}

		micros, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid price in catalog entry %q", entry)
		}

		details := &billing.SkuDetails{
			Sku:               parts[1],
			Type:              skuType,
			Title:             parts[1],
			PriceAmountMicros: micros,
			PriceCurrencyCode: parts[3],
			Price:             FormatPrice(micros, parts[3]),
		}
		if skuType == billing.SkuTypeSubs {
			details.SubscriptionPeriod = "P1M"
		}

		catalog = append(catalog, details)
	}
	return catalog, nil
}

// FormatPrice renders a micro-unit amount the way ParseCatalog does.
func FormatPrice(micros int64, currency string) string {
	return decimal.New(micros, -6).StringFixed(2) + " " + currency
}
