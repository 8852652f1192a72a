package dictionary

import (
	"sort"

	"github.com/tinoosan/tillbook/internal/ledger"
)

// Account codes of the fixed chart.
const (
	Cash                 = "1000"
	CashReserve          = "1010"
	Bank                 = "1020"
	AccountsReceivable   = "1100"
	Inventory            = "1200"
	AccountsPayable      = "2000"
	OwnerEquity          = "3000"
	OwnerDrawings        = "3100"
	OpeningBalance       = "3900"
	SalesRevenue         = "4000"
	MiscellaneousRevenue = "4900"
	CostOfGoodsSold      = "5000"
	OperatingExpenses    = "6000"
)

var chart = map[string]ledger.Account{
	Cash:                 {Code: Cash, Name: "Cash", Type: ledger.AccountTypeAsset},
	CashReserve:          {Code: CashReserve, Name: "Cash Reserve", Type: ledger.AccountTypeAsset},
	Bank:                 {Code: Bank, Name: "Bank", Type: ledger.AccountTypeAsset},
	AccountsReceivable:   {Code: AccountsReceivable, Name: "Accounts Receivable", Type: ledger.AccountTypeAsset},
	Inventory:            {Code: Inventory, Name: "Inventory", Type: ledger.AccountTypeAsset},
	AccountsPayable:      {Code: AccountsPayable, Name: "Accounts Payable", Type: ledger.AccountTypeLiability},
	OwnerEquity:          {Code: OwnerEquity, Name: "Owner Equity", Type: ledger.AccountTypeEquity},
	OwnerDrawings:        {Code: OwnerDrawings, Name: "Owner Drawings", Type: ledger.AccountTypeEquity},
	OpeningBalance:       {Code: OpeningBalance, Name: "Opening Balance", Type: ledger.AccountTypeEquity},
	SalesRevenue:         {Code: SalesRevenue, Name: "Sales Revenue", Type: ledger.AccountTypeRevenue},
	MiscellaneousRevenue: {Code: MiscellaneousRevenue, Name: "Miscellaneous Revenue", Type: ledger.AccountTypeRevenue},
	CostOfGoodsSold:      {Code: CostOfGoodsSold, Name: "Cost of Goods Sold", Type: ledger.AccountTypeExpense},
	OperatingExpenses:    {Code: OperatingExpenses, Name: "Operating Expenses", Type: ledger.AccountTypeExpense},
}

// Lookup returns the chart entry for code.
func Lookup(code string) (ledger.Account, bool) {
	a, ok := chart[code]
	return a, ok
}

// Accounts returns the chart ordered by code, optionally filtered by type.
func Accounts(t *ledger.AccountType) []ledger.Account {
	out := make([]ledger.Account, 0, len(chart))
	for _, a := range chart {
		if t != nil && a.Type != *t {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
