package models

import "github.com/shopspring/decimal"

type Stats struct {
	ActiveCards  int64           `json:"active_cards"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	TodaysTopups decimal.Decimal `json:"todays_topups"`
}
