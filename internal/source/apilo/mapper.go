package apilo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"order_sync/internal/domain"
)

const (
	// PaidThreshold is the lowest upstream payment status code meaning paid.
	PaidThreshold = 2
	// ShippingItemType marks an order item row as the shipping fee line.
	ShippingItemType = 2

	defaultCurrency = "PLN"
	unknownItemName = "Unknown"
)

// PlatformLookup resolves a platform-account id to a directory entry.
type PlatformLookup interface {
	Lookup(id int64) (domain.Platform, bool)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// orderID is empty when the upstream row has no positive id.
func orderID(o Order) string {
	if !hasID(o) {
		return ""
	}
	return strconv.FormatInt(o.ID.Value, 10)
}

// Map converts one upstream order into a normalized order. It never fails:
// missing or malformed optional fields degrade to their defaults.
func Map(o Order, platforms PlatformLookup) domain.Order {
	items := make([]domain.LineItem, 0, len(o.OrderItems))
	itemsTotal := decimal.Zero
	for _, it := range o.OrderItems {
		item := mapItem(it)
		itemsTotal = itemsTotal.Add(item.LineTotalGross)
		items = append(items, item)
	}

	currency := string(o.OriginalCurrency)
	if currency == "" {
		currency = defaultCurrency
	}

	totalGross := itemsTotal
	if o.OriginalAmountTotalWithTax.Valid {
		totalGross = o.OriginalAmountTotalWithTax.Value
	}

	paymentStatus := domain.PaymentUnpaid
	if o.PaymentStatus.Valid && o.PaymentStatus.Value >= PaidThreshold {
		paymentStatus = domain.PaymentPaid
	}

	paid := decimal.Zero
	switch {
	case o.OriginalAmountTotalPaid.Valid:
		paid = o.OriginalAmountTotalPaid.Value
	case paymentStatus == domain.PaymentPaid:
		paid = totalGross
	}

	orderedAt := parseTime(string(o.OrderedAt))
	if orderedAt == nil {
		orderedAt = parseTime(string(o.CreatedAt))
	}

	out := domain.Order{
		ID:         orderID(o),
		ExternalID: optional(string(o.IDExternal)),
		Channel:    mapChannel(o, platforms),
		Dates: domain.OrderDates{
			OrderedAt:    orderedAt,
			UpdatedAt:    parseTime(string(o.UpdatedAt)),
			ShippingDate: parseTime(string(o.ShippingDate)),
			SendDateMin:  parseTime(string(o.SendDateMin)),
			SendDateMax:  parseTime(string(o.SendDateMax)),
		},
		Status: domain.OrderStatus{
			PaymentStatus:     paymentStatus,
			PaymentStatusCode: int(o.PaymentStatus.Value),
			IsInvoice:         bool(o.IsInvoice),
			IsCanceled:        bool(o.IsCanceledByBuyer),
		},
		Financials: domain.Financials{
			TotalGross: totalGross,
			TotalNet:   o.OriginalAmountTotalWithoutTax.Value,
			Currency:   currency,
			PaidAmount: paid,
		},
		Customer: mapAddress(o.AddressCustomer.Value),
		Shipping: mapAddress(o.AddressDelivery.Value),
		Invoice:  mapAddress(o.AddressInvoice.Value),
		Payments: make([]domain.Payment, 0, len(o.OrderPayments)),
		Notes:    make([]domain.Note, 0, len(o.OrderNotes)),
		Items:    items,
	}

	if o.Status.Valid {
		code := int(o.Status.Value)
		out.Status.DeliveryStatusCode = &code
	}

	for _, p := range o.OrderPayments {
		pc := string(p.Currency)
		if pc == "" {
			pc = currency
		}
		out.Payments = append(out.Payments, domain.Payment{
			ID:       p.ID.Value,
			Date:     parseTime(string(p.PaymentDate)),
			Amount:   p.Amount.Value,
			Currency: pc,
			Type:     int(p.Type.Value),
			Comment:  string(p.Comment),
		})
	}

	for _, n := range o.OrderNotes {
		out.Notes = append(out.Notes, domain.Note{
			Type:      int(n.Type.Value),
			Comment:   string(n.Comment),
			CreatedAt: parseTime(string(n.CreatedAt)),
		})
	}

	return out
}

func mapChannel(o Order, platforms PlatformLookup) domain.Channel {
	id := o.PlatformAccountID
	if !id.Valid || id.Value == 0 {
		id = o.PlatformID
	}

	var (
		entry domain.Platform
		found bool
	)
	if id.Valid && platforms != nil {
		entry, found = platforms.Lookup(id.Value)
	}

	ch := domain.Channel{Label: "Platform unknown", Platform: domain.UnknownPlatform}
	if id.Valid {
		ch.Label = fmt.Sprintf("Platform %d", id.Value)
	}
	if found && entry.Label != "" {
		ch.Label = entry.Label
	}

	switch {
	case o.PlatformName != "":
		ch.Platform = string(o.PlatformName)
	case found && entry.Family != "":
		ch.Platform = entry.Family
	case found && familyOf(entry.Label) != "":
		ch.Platform = familyOf(entry.Label)
	}

	return ch
}

func mapItem(it OrderItem) domain.LineItem {
	qty := 1
	if it.Quantity.Valid && it.Quantity.Value > 0 {
		qty = int(it.Quantity.Value)
	}

	name := string(it.OriginalName)
	if name == "" {
		name = unknownItemName
	}

	unit := it.OriginalPriceWithTax.Value
	return domain.LineItem{
		Name:           name,
		SKU:            string(it.SKU),
		EAN:            string(it.EAN),
		Quantity:       qty,
		UnitPriceGross: unit,
		LineTotalGross: unit.Mul(decimal.NewFromInt(int64(qty))),
		ImageURL:       optional(string(it.Media)),
		IsShippingLine: it.Type.Valid && it.Type.Value == ShippingItemType,
	}
}

func mapAddress(a *Address) *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{
		Name:             string(a.Name),
		Phone:            string(a.Phone),
		Email:            string(a.Email),
		Street:           string(a.StreetName),
		StreetNumber:     string(a.StreetNumber),
		City:             string(a.City),
		ZipCode:          string(a.ZipCode),
		Country:          string(a.Country),
		CompanyName:      string(a.CompanyName),
		CompanyTaxNumber: string(a.CompanyTaxNumber),
	}
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
