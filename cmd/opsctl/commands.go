package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tienda-online/api/internal/di"
	"github.com/tienda-online/api/internal/payments"
	"github.com/tienda-online/api/internal/services"
)

// ops runs operator commands against the service layer.
type ops struct {
	services di.Services
	out      io.Writer
}

type opsFactory func(*cli.Context) (*ops, error)

func newApp(factory opsFactory) *cli.App {
	withOps := func(fn func(*cli.Context, *ops) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			o, err := factory(c)
			if err != nil {
				return err
			}
			return fn(c, o)
		}
	}

	return &cli.App{
		Name:  "opsctl",
		Usage: "operator tooling for order reconciliation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Usage: "repository backend (firestore or memory)", EnvVars: []string{"API_REPOSITORY_BACKEND"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "reconcile",
				Usage: "replay a gateway payment through the reconciler",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Value: payments.ProviderMercadoPago},
					&cli.StringFlag{Name: "payment-id", Required: true},
				},
				Action: withOps(func(c *cli.Context, o *ops) error {
					return o.reconcile(c, c.String("provider"), c.String("payment-id"))
				}),
			},
			{
				Name: "order",
				Subcommands: []*cli.Command{{
					Name:  "show",
					Usage: "print an order by number",
					Flags: []cli.Flag{&cli.StringFlag{Name: "number", Required: true}},
					Action: withOps(func(c *cli.Context, o *ops) error {
						return o.showOrder(c, c.String("number"))
					}),
				}},
			},
			{
				Name:  "stock",
				Usage: "adjust reserved stock by hand",
				Subcommands: []*cli.Command{
					{
						Name:  "release",
						Usage: "move reserved units back to available",
						Flags: stockFlags(),
						Action: withOps(func(c *cli.Context, o *ops) error {
							return o.adjustStock(c, "release", c.String("product"), c.Int("qty"))
						}),
					},
					{
						Name:  "confirm",
						Usage: "move reserved units to sold",
						Flags: stockFlags(),
						Action: withOps(func(c *cli.Context, o *ops) error {
							return o.adjustStock(c, "confirm", c.String("product"), c.Int("qty"))
						}),
					},
				},
			},
			{
				Name: "coupon",
				Subcommands: []*cli.Command{{
					Name:  "create",
					Usage: "create a single-use coupon",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "code", Required: true},
						&cli.Float64Flag{Name: "percent", Required: true},
						&cli.StringFlag{Name: "valid-until", Required: true, Usage: "RFC3339 timestamp"},
					},
					Action: withOps(func(c *cli.Context, o *ops) error {
						return o.createCoupon(c, c.String("code"), c.Float64("percent"), c.String("valid-until"))
					}),
				}},
			},
		},
	}
}

func stockFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "product", Required: true},
		&cli.IntFlag{Name: "qty", Required: true},
	}
}

func (o *ops) reconcile(c *cli.Context, provider, paymentID string) error {
	result, err := o.services.Reconciler.HandleNotification(c.Context, services.Notification{
		Provider:  strings.ToLower(strings.TrimSpace(provider)),
		Topic:     "payment",
		PaymentID: paymentID,
	})
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", paymentID, err)
	}
	return o.print(map[string]any{
		"outcome":       result.Outcome,
		"orderId":       result.OrderID,
		"orderNumber":   result.OrderNumber,
		"paymentStatus": result.PaymentStatus,
	})
}

func (o *ops) showOrder(c *cli.Context, number string) error {
	order, err := o.services.Orders.GetByNumber(c.Context, services.Actor{Admin: true}, number)
	if err != nil {
		return err
	}
	return o.print(order)
}

func (o *ops) adjustStock(c *cli.Context, action, productID string, qty int) error {
	var err error
	switch action {
	case "release":
		stock, rerr := o.services.Ledger.ReleaseReservation(c.Context, productID, qty)
		if rerr == nil {
			return o.print(stock)
		}
		err = rerr
	case "confirm":
		stock, cerr := o.services.Ledger.ConfirmReservedSale(c.Context, productID, qty)
		if cerr == nil {
			return o.print(stock)
		}
		err = cerr
	default:
		return fmt.Errorf("unknown stock action %q", action)
	}
	return fmt.Errorf("stock %s %s: %w", action, productID, err)
}

func (o *ops) createCoupon(c *cli.Context, code string, percent float64, validUntil string) error {
	until, err := time.Parse(time.RFC3339, strings.TrimSpace(validUntil))
	if err != nil {
		return fmt.Errorf("valid-until must be RFC3339: %w", err)
	}
	coupon, err := o.services.Coupons.Create(c.Context, services.CreateCouponCommand{
		Code:               code,
		DiscountPercentage: percent,
		ValidUntil:         until,
	})
	if err != nil {
		return err
	}
	return o.print(coupon)
}

func (o *ops) print(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
