package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rxdesk/rxdesk/internal/checkout"
)

// cmdOrder walks the three stage checkout on the terminal: delivery address,
// billing details, then a confirmation summary before the order is placed.
func (a *app) cmdOrder(ctx context.Context, args []string) error {
	refs, discounts, err := parseOrderArgs(args)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return errors.New("usage: rxdesk order <item-id:qty> [...] [-discount 10%] [-discount 50]")
	}

	items, err := a.inventory.List(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}

	lines := make([]checkout.LineItem, 0, len(refs))
	for id, qty := range refs {
		idx, ok := byID[id]
		if !ok {
			return fmt.Errorf("no inventory item with id %d", id)
		}
		item := items[idx]
		if item.Quantity < qty {
			return fmt.Errorf("only %d of %s in stock", item.Quantity, item.Name)
		}
		lines = append(lines, checkout.LineItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: qty,
		})
	}

	c, err := checkout.New(lines, discounts, a.orders, a.logger)
	if err != nil {
		return err
	}

	for {
		switch c.Stage() {
		case checkout.StageDelivery:
			a.runDeliveryStage(c)
		case checkout.StageBilling:
			a.runBillingStage(c)
		case checkout.StageConfirmation:
			placed, err := a.runConfirmationStage(ctx, c)
			if err != nil {
				return err
			}
			if placed {
				return nil
			}
		}
	}
}

func (a *app) runDeliveryStage(c *checkout.Checkout) {
	fmt.Fprintln(a.out, "\n-- Delivery address --")
	addr := c.Delivery()
	addr.Street = a.promptDefault("Street", addr.Street)
	addr.City = a.promptDefault("City", addr.City)
	addr.State = a.promptDefault("State", addr.State)
	addr.ZipCode = a.promptDefault("Zip code", addr.ZipCode)
	addr.Phone = a.promptDefault("Phone (optional)", addr.Phone)
	c.SetDelivery(addr)

	if err := c.Next(); err != nil {
		var verr *checkout.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(a.out, "Missing: %s\n", strings.Join(verr.Fields, ", "))
			return
		}
		fmt.Fprintln(a.out, err.Error())
	}
}

func (a *app) runBillingStage(c *checkout.Checkout) {
	fmt.Fprintln(a.out, "\n-- Billing --")
	answer := strings.ToLower(a.prompt("Billing same as delivery? [Y/n/back]: "))
	if answer == "back" {
		c.Back()
		return
	}

	c.SetSameAsDelivery(answer == "" || answer == "y" || answer == "yes")
	billing := c.Billing()
	if !billing.SameAsDelivery {
		name := a.promptDefault("Billing name", billing.Name)
		address := a.promptDefault("Billing address", billing.Address)
		taxID := a.promptDefault("GST number (optional)", billing.TaxID)
		c.SetBilling(name, address, taxID)
	} else if gst := a.promptDefault("GST number (optional)", billing.TaxID); gst != billing.TaxID {
		c.SetBilling(billing.Name, billing.Address, gst)
	}

	if err := c.Next(); err != nil {
		var verr *checkout.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(a.out, "Missing: %s\n", strings.Join(verr.Fields, ", "))
			return
		}
		fmt.Fprintln(a.out, err.Error())
	}
}

func (a *app) runConfirmationStage(ctx context.Context, c *checkout.Checkout) (placed bool, err error) {
	fmt.Fprintln(a.out, "\n-- Confirm order --")
	for _, line := range c.Items() {
		fmt.Fprintf(a.out, "  %dx %s @ %s\n", line.Quantity, line.Name, line.Price.StringFixed(2))
	}
	fmt.Fprintf(a.out, "Subtotal: %s\n", c.Subtotal().StringFixed(2))
	if !c.Total().Equal(c.Subtotal()) {
		fmt.Fprintf(a.out, "Total:    %s (after discounts)\n", c.Total().StringFixed(2))
	} else {
		fmt.Fprintf(a.out, "Total:    %s\n", c.Total().StringFixed(2))
	}
	fmt.Fprintf(a.out, "Deliver to: %s\n", c.Delivery().Formatted())
	billing := c.Billing()
	if billing.SameAsDelivery {
		fmt.Fprintln(a.out, "Billing:    same as delivery")
	} else {
		fmt.Fprintf(a.out, "Billing:    %s, %s\n", billing.Name, billing.Address)
	}

	switch strings.ToLower(a.prompt("Place order? [y/back/q]: ")) {
	case "y", "yes":
		order, err := c.Submit(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.out, "Order #%d placed, status %s\n", order.ID, order.Status)
		return true, nil
	case "back":
		c.Back()
		return false, nil
	case "q", "quit":
		return false, errors.New("order cancelled")
	default:
		return false, nil
	}
}

func (a *app) promptDefault(label, current string) string {
	if current != "" {
		label = fmt.Sprintf("%s [%s]", label, current)
	}
	value := a.prompt(label + ": ")
	if value == "" {
		return current
	}
	return value
}

// parseOrderArgs splits "id:qty" item references from repeated -discount
// flags. Discounts ending in % are percentages, the rest are fixed amounts.
func parseOrderArgs(args []string) (map[int]int, []checkout.Discount, error) {
	refs := make(map[int]int)
	var discounts []checkout.Discount

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-discount" || arg == "--discount" {
			i++
			if i >= len(args) {
				return nil, nil, errors.New("-discount requires a value")
			}
			discount, err := parseDiscount(args[i])
			if err != nil {
				return nil, nil, err
			}
			discounts = append(discounts, discount)
			continue
		}

		parts := strings.SplitN(arg, ":", 2)
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid item reference %q, expected id:qty", arg)
		}
		qty := 1
		if len(parts) == 2 {
			if qty, err = strconv.Atoi(parts[1]); err != nil || qty <= 0 {
				return nil, nil, fmt.Errorf("invalid quantity in %q", arg)
			}
		}
		refs[id] += qty
	}
	return refs, discounts, nil
}

func parseDiscount(raw string) (checkout.Discount, error) {
	if pct, ok := strings.CutSuffix(raw, "%"); ok {
		value, err := decimal.NewFromString(pct)
		if err != nil {
			return checkout.Discount{}, fmt.Errorf("invalid discount %q", raw)
		}
		return checkout.Discount{
			Type:        checkout.DiscountPercentage,
			Value:       value,
			Description: raw + " off",
		}, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return checkout.Discount{}, fmt.Errorf("invalid discount %q", raw)
	}
	return checkout.Discount{
		Type:        checkout.DiscountFixed,
		Value:       value,
		Description: raw + " off",
	}, nil
}
