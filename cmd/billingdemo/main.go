package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-billing/billing"
	"github.com/code-payments/flipchat-billing/billing/memory"
	"github.com/code-payments/flipchat-billing/config"
	"github.com/code-payments/flipchat-billing/event"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "billingdemo",
		Short:        "Drive the billing gateway against an in-memory backend",
		SilenceUsage: true,
	}
	root.AddCommand(newCatalogCmd(), newPurchaseCmd())
	return root
}

// terminalHost stands in for the on-screen context a purchase flow needs.
// Flows launched on it are announced on out.
type terminalHost struct {
	out io.Writer
}

func (h *terminalHost) announce(sku string) {
	fmt.Fprintf(h.out, "launched purchase flow for %s\n", sku)
}

type demo struct {
	log     *zap.Logger
	catalog []*billing.SkuDetails
	backend *memory.Backend
	gateway *billing.Gateway
}

func newDemo() (*demo, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	log, err := logCfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}

	catalog, err := config.ParseCatalog(cfg.DemoCatalog)
	if err != nil {
		return nil, err
	}

	backend := memory.NewBackend(log.Named("backend"), cfg.PackageName)
	for _, details := range catalog {
		backend.AddProduct(details)
	}

	return &demo{
		log:     log,
		catalog: catalog,
		backend: backend,
		gateway: billing.NewGateway(log.Named("gateway"), backend, cfg.Gateway()),
	}, nil
}

func (d *demo) close() {
	d.gateway.Close()
	d.gateway.EndConnection()
	_ = d.log.Sync()
}

// connect waits for the handshake and returns the connection stream, which
// keeps reporting disconnects.
func (d *demo) connect(ctx context.Context) (*event.Stream[billing.ConnectionEvent], error) {
	stream := d.gateway.Connect()

	select {
	case e := <-stream.Channel():
		if e.Status != billing.ConnectionStatusConnected {
			stream.Close()
			return nil, errors.Errorf("billing connection %s", e)
		}
	case <-ctx.Done():
		stream.Close()
		return nil, ctx.Err()
	}

	d.log.Debug("Connected to billing backend", zap.Bool("ready", d.gateway.IsReady()))
	return stream, nil
}

func (d *demo) skus(skuType billing.SkuType) []string {
	var skus []string
	for _, details := range d.catalog {
		if details.Type == skuType {
			skus = append(skus, details.Sku)
		}
	}
	return skus
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the products the backend resolves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			d, err := newDemo()
			if err != nil {
				return err
			}
			defer d.close()

			connection, err := d.connect(ctx)
			if err != nil {
				return err
			}
			defer connection.Close()

			out := cmd.OutOrStdout()

			inApp, err := d.gateway.QueryInAppSkuDetails(ctx, d.skus(billing.SkuTypeInApp))
			if err != nil {
				return err
			}
			printSkuDetails(out, inApp)

			subs, err := d.gateway.QuerySubscriptionsSkuDetails(ctx, d.skus(billing.SkuTypeSubs))
			if err != nil {
				return err
			}
			printSkuDetails(out, subs)

			return nil
		},
	}
}

func newPurchaseCmd() *cobra.Command {
	var (
		subscription bool
		consume      bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "purchase <sku>",
		Short: "Launch and complete a purchase flow for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d, err := newDemo()
			if err != nil {
				return err
			}
			defer d.close()

			connection, err := d.connect(ctx)
			if err != nil {
				return err
			}
			defer connection.Close()

			updates := d.gateway.PurchaseUpdates()
			defer updates.Close()

			out := cmd.OutOrStdout()
			host := &terminalHost{out: out}
			sku := args[0]

			var result billing.PurchaseResult
			if subscription {
				result, err = d.gateway.PurchaseSubscription(ctx, sku, host)
			} else {
				result, err = d.gateway.PurchaseItem(ctx, sku, host)
			}
			if err != nil {
				return err
			}
			if result.Failed() {
				return errors.Errorf("purchase flow for %s did not launch: %s", sku, result.Code())
			}
			host.announce(sku)

			// Stand in for the user finishing the flow.
			launches := d.backend.Launches()
			if _, err := d.backend.CompletePurchase(launches[len(launches)-1]); err != nil {
				return err
			}

			purchase, err := awaitPurchase(ctx, updates)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "purchased %v order=%s token=%s\n", purchase.Skus, purchase.OrderID, purchase.PurchaseToken)

			if subscription {
				ack, err := d.gateway.AcknowledgePurchase(ctx, purchase.PurchaseToken)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "acknowledged: %s\n", ack.Code())
			} else if consume {
				consumed, err := d.gateway.ConsumeItem(ctx, purchase.PurchaseToken)
				if err != nil {
					return err
				}
				if consumed.Failed() {
					return errors.Errorf("failed to consume %s: %s", sku, consumed.Code())
				}
				fmt.Fprintf(out, "consumed token=%s\n", consumed.Payload())
			}

			queryHistory := d.gateway.QueryInAppPurchaseHistory
			if subscription {
				queryHistory = d.gateway.QuerySubscriptionPurchaseHistory
			}
			history, err := queryHistory(ctx)
			if err != nil {
				return err
			}
			history.Match(
				func(records []*billing.PurchaseHistoryRecord) {
					fmt.Fprintf(out, "history has %d record(s)\n", len(records))
				},
				func(code billing.ResponseCode) {
					fmt.Fprintf(out, "history unavailable: %s\n", code)
				},
			)

			return nil
		},
	}

	cmd.Flags().BoolVar(&subscription, "subscription", false, "purchase a subscription instead of an in-app product")
	cmd.Flags().BoolVar(&consume, "consume", false, "consume the in-app product after purchasing it")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the backend")

	return cmd
}

func awaitPurchase(ctx context.Context, updates *event.Stream[billing.PurchasesUpdate]) (*billing.Purchase, error) {
	for {
		select {
		case update, ok := <-updates.Channel():
			if !ok {
				return nil, errors.New("purchase updates closed")
			}
			if update.Failed() {
				return nil, errors.Errorf("purchase failed: %s", update.Code())
			}
			if purchases := update.Payload(); len(purchases) > 0 {
				return purchases[0], nil
			}
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "no purchase update received")
		}
	}
}

func printSkuDetails(out io.Writer, result billing.SkuDetailsResult) {
	result.Match(
		func(details []*billing.SkuDetails) {
			for _, d := range details {
				fmt.Fprintf(out, "%-6s %-24s %s\n", d.Type, d.Sku, d.Price)
			}
		},
		func(code billing.ResponseCode) {
			fmt.Fprintf(out, "query failed: %s\n", code)
		},
	)
}
