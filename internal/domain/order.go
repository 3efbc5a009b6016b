package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "PAID"
	PaymentUnpaid PaymentStatus = "UNPAID"
)

// UnknownPlatform is the channel family used when nothing identifies the platform.
const UnknownPlatform = "Unknown"

// Order is the normalized, platform-agnostic order record. It is overwritten
// wholesale on every sync of the same ID.
type Order struct {
	ID         string      `json:"id"`
	ExternalID *string     `json:"externalId"`
	Channel    Channel     `json:"channel"`
	Dates      OrderDates  `json:"dates"`
	Status     OrderStatus `json:"status"`
	Financials Financials  `json:"financials"`
	Customer   *Address    `json:"customer"`
	Shipping   *Address    `json:"shipping"`
	Invoice    *Address    `json:"invoice"`
	Payments   []Payment   `json:"payments"`
	Notes      []Note      `json:"notes"`
	Items      []LineItem  `json:"items"`
}

type Channel struct {
	Label    string `json:"label"`
	Platform string `json:"platform"`
}

type OrderDates struct {
	OrderedAt    *time.Time `json:"orderedAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
	ShippingDate *time.Time `json:"shippingDate"`
	SendDateMin  *time.Time `json:"sendDateMin"`
	SendDateMax  *time.Time `json:"sendDateMax"`
}

type OrderStatus struct {
	PaymentStatus      PaymentStatus `json:"paymentStatus"`
	PaymentStatusCode  int           `json:"paymentStatusCode"`
	DeliveryStatusCode *int          `json:"deliveryStatusCode"`
	IsInvoice          bool          `json:"isInvoice"`
	IsCanceled         bool          `json:"isCanceled"`
}

type Financials struct {
	TotalGross decimal.Decimal `json:"totalGross"`
	TotalNet   decimal.Decimal `json:"totalNet"`
	Currency   string          `json:"currency"`
	PaidAmount decimal.Decimal `json:"paidAmount"`
}

type Address struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	Street           string `json:"street"`
	StreetNumber     string `json:"streetNumber"`
	City             string `json:"city"`
	ZipCode          string `json:"zipCode"`
	Country          string `json:"country"`
	CompanyName      string `json:"companyName"`
	CompanyTaxNumber string `json:"companyTaxNumber"`
}

type Payment struct {
	ID       int64           `json:"id"`
	Date     *time.Time      `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Type     int             `json:"type"`
	Comment  string          `json:"comment"`
}

type Note struct {
	Type      int        `json:"type"`
	Comment   string     `json:"comment"`
	CreatedAt *time.Time `json:"createdAt"`
}

type LineItem struct {
	Name           string          `json:"name"`
	SKU            string          `json:"sku"`
	EAN            string          `json:"ean"`
	Quantity       int             `json:"quantity"`
	UnitPriceGross decimal.Decimal `json:"unitPriceGross"`
	LineTotalGross decimal.Decimal `json:"lineTotalGross"`
	ImageURL       *string         `json:"imageUrl"`
	IsShippingLine bool            `json:"isShippingLine"`
}

// Platform is a Platform Directory entry.
type Platform struct {
	ID     int64
	Label  string
	Family string
}
