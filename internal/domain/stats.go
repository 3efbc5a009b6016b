package domain

import "github.com/shopspring/decimal"

// ShippedStatusCode is the upstream delivery status of a dispatched order.
const ShippedStatusCode = 13

// OrderFilter selects a page of stored orders. Empty fields match everything.
type OrderFilter struct {
	Limit         int
	Offset        int
	Platform      string
	PaymentStatus PaymentStatus
}

type StatusCount struct {
	Status *int  `db:"status" json:"status"`
	Count  int64 `db:"count" json:"count"`
}

type ChannelCount struct {
	Label    string `db:"label" json:"label"`
	Platform string `db:"platform" json:"platform"`
	Count    int64  `db:"count" json:"count"`
}

type PlatformCount struct {
	Platform string `db:"platform" json:"platform"`
	Count    int64  `db:"count" json:"count"`
}

type CurrencyTotal struct {
	Currency string          `db:"currency" json:"currency"`
	Total    decimal.Decimal `db:"total" json:"total"`
}

// Summary is the dashboard headline: counts and revenue relative to one day.
type Summary struct {
	OrdersToday          int64           `json:"ordersToday"`
	OrdersYesterday      int64           `json:"ordersYesterday"`
	ShippedToday         int64           `json:"shippedToday"`
	ShippedYesterday     int64           `json:"shippedYesterday"`
	TotalOrders          int64           `json:"totalOrders"`
	TodayByPlatform      []PlatformCount `json:"todayByPlatform"`
	Last30DaysByPlatform []PlatformCount `json:"last30DaysByPlatform"`
	RevenueToday         []CurrencyTotal `json:"revenueToday"`
	Revenue30Days        []CurrencyTotal `json:"revenue30Days"`
}
