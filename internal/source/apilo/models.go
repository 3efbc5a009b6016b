package apilo

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// The upstream is loose about scalar types: ids, amounts and flags arrive as
// numbers or strings depending on the endpoint. The types below never fail to
// decode; a value they cannot interpret is simply absent.

// Number is a decimal that accepts JSON numbers and numeric strings.
type Number struct {
	Value decimal.Decimal
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	s, ok := scalar(b)
	if !ok || s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	n.Value, n.Valid = d, true
	return nil
}

// Int accepts integers, integral floats and numeric strings.
type Int struct {
	Value int64
	Valid bool
}

func (i *Int) UnmarshalJSON(b []byte) error {
	*i = Int{}
	var n Number
	_ = n.UnmarshalJSON(b)
	if !n.Valid || !n.Value.Equal(n.Value.Truncate(0)) {
		return nil
	}
	i.Value, i.Valid = n.Value.IntPart(), true
	return nil
}

// Text accepts any scalar and keeps its textual form.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s, _ := scalar(b)
	*t = Text(s)
	return nil
}

// Flag accepts booleans, 0/1 and their string forms.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	s, _ := scalar(b)
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// scalar returns the text of a JSON string, number or bool. Objects, arrays
// and null report false.
func scalar(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case '{', '[':
		return "", false
	default:
		return string(b), true
	}
}

// Object is a nested object. Anything but a JSON object, including the empty
// array PHP emits for an empty map, decodes as absent.
type Object[T any] struct {
	Value *T
}

func (o *Object[T]) UnmarshalJSON(b []byte) error {
	*o = Object[T]{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	o.Value = &v
	return nil
}

// List is a nested array. A non-array decodes as empty and elements that are
// not objects are dropped.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(b []byte) error {
	*l = List[T]{}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			continue
		}
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			continue
		}
		*l = append(*l, v)
	}
	return nil
}

// OrdersResponse is the body of GET /rest/api/orders/.
type OrdersResponse struct {
	Orders     []Order `json:"orders"`
	TotalCount Int     `json:"totalCount"`
}

// Order is the upstream order representation, list and detail variants.
type Order struct {
	ID                            Int             `json:"id"`
	IDExternal                    Text            `json:"idExternal"`
	PlatformAccountID             Int             `json:"platformAccountId"`
	PlatformID                    Int             `json:"platformId"`
	PlatformName                  Text            `json:"platformName"`
	OrderedAt                     Text            `json:"orderedAt"`
	CreatedAt                     Text            `json:"createdAt"`
	UpdatedAt                     Text            `json:"updatedAt"`
	ShippingDate                  Text            `json:"shippingDate"`
	SendDateMin                   Text            `json:"sendDateMin"`
	SendDateMax                   Text            `json:"sendDateMax"`
	PaymentStatus                 Int             `json:"paymentStatus"`
	Status                        Int             `json:"status"`
	IsInvoice                     Flag            `json:"isInvoice"`
	IsCanceledByBuyer             Flag            `json:"isCanceledByBuyer"`
	OriginalCurrency              Text            `json:"originalCurrency"`
	OriginalAmountTotalWithTax    Number          `json:"originalAmountTotalWithTax"`
	OriginalAmountTotalWithoutTax Number          `json:"originalAmountTotalWithoutTax"`
	OriginalAmountTotalPaid       Number          `json:"originalAmountTotalPaid"`
	OrderItems                    List[OrderItem] `json:"orderItems"`
	AddressCustomer               Object[Address] `json:"addressCustomer"`
	AddressDelivery               Object[Address] `json:"addressDelivery"`
	AddressInvoice                Object[Address] `json:"addressInvoice"`
	OrderPayments                 List[Payment]   `json:"orderPayments"`
	OrderNotes                    List[Note]      `json:"orderNotes"`
}

// UnmarshalJSON decodes a row that is not an object as an empty order.
func (o *Order) UnmarshalJSON(b []byte) error {
	*o = Order{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	type plain Order
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return nil
	}
	*o = Order(p)
	return nil
}

type OrderItem struct {
	OriginalName         Text   `json:"originalName"`
	SKU                  Text   `json:"sku"`
	EAN                  Text   `json:"ean"`
	Quantity             Int    `json:"quantity"`
	OriginalPriceWithTax Number `json:"originalPriceWithTax"`
	Type                 Int    `json:"type"`
	Media                Text   `json:"media"`
}

type Address struct {
	Name             Text `json:"name"`
	Phone            Text `json:"phone"`
	Email            Text `json:"email"`
	StreetName       Text `json:"streetName"`
	StreetNumber     Text `json:"streetNumber"`
	City             Text `json:"city"`
	ZipCode          Text `json:"zipCode"`
	Country          Text `json:"country"`
	CompanyName      Text `json:"companyName"`
	CompanyTaxNumber Text `json:"companyTaxNumber"`
}

type Payment struct {
	ID          Int    `json:"id"`
	PaymentDate Text   `json:"paymentDate"`
	Amount      Number `json:"amount"`
	Currency    Text   `json:"currency"`
	Type        Int    `json:"type"`
	Comment     Text   `json:"comment"`
}

type Note struct {
	Type      Int  `json:"type"`
	Comment   Text `json:"comment"`
	CreatedAt Text `json:"createdAt"`
}

// PlatformEntry is one row of GET /rest/api/orders/platform/map/.
type PlatformEntry struct {
	ID          Int  `json:"id"`
	Name        Text `json:"name"`
	Description Text `json:"description"`
}

type tokenRequest struct {
	GrantType string `json:"grantType"`
	Token     string `json:"token"`
}

type tokenResponse struct {
	AccessToken         string `json:"accessToken"`
	RefreshToken        string `json:"refreshToken"`
	AccessTokenExpireAt string `json:"accessTokenExpireAt"`
}
