package ledger

import (
	"testing"
	"time"

	"github.com/ayyanshiraz/inv/internal/domain"
)

func amt(v float64) domain.Amount {
	return domain.NewAmount(v)
}

func day(d int, hour int) time.Time {
	return time.Date(2026, time.March, d, hour, 0, 0, 0, time.UTC)
}

func TestCurrentBalanceLifecycle(t *testing.T) {
	customer := domain.Customer{ID: "CUST-1", OpeningBalance: amt(1000)}

	sale := domain.Invoice{ID: "S1", CustomerID: "CUST-1", TotalAmount: amt(500), PaidAmount: amt(200)}
	if got := CurrentBalance(customer, []domain.Invoice{sale}); !got.Equal(amt(1300)) {
		t.Fatalf("after sale: expected 1300, got %s", got)
	}

	ret := domain.Invoice{ID: "R1", CustomerID: "CUST-1", TotalAmount: amt(100), IsReturn: true}
	if got := CurrentBalance(customer, []domain.Invoice{sale, ret}); !got.Equal(amt(1200)) {
		t.Fatalf("after return: expected 1200, got %s", got)
	}

	sale.IsHold = true
	if got := CurrentBalance(customer, []domain.Invoice{sale, ret}); !got.Equal(amt(900)) {
		t.Fatalf("after hold: expected 900, got %s", got)
	}

	voucher := domain.Invoice{ID: "V1", CustomerID: "CUST-1", PaidAmount: amt(300)}
	if got := CurrentBalance(customer, []domain.Invoice{sale, ret, voucher}); !got.Equal(amt(600)) {
		t.Fatalf("after voucher: expected 600, got %s", got)
	}
}

func TestCurrentBalanceOrderIndependent(t *testing.T) {
	customer := domain.Customer{ID: "CUST-1", OpeningBalance: amt(50)}
	invoices := []domain.Invoice{
		{ID: "A", TotalAmount: amt(200), PaidAmount: amt(50)},
		{ID: "B", TotalAmount: amt(75), IsReturn: true},
		{ID: "C", PaidAmount: amt(40)},
	}
	forward := CurrentBalance(customer, invoices)
	reversed := CurrentBalance(customer, []domain.Invoice{invoices[2], invoices[1], invoices[0]})
	if !forward.Equal(reversed) {
		t.Fatalf("balance depends on order: %s vs %s", forward, reversed)
	}
	if !forward.Equal(amt(85)) {
		t.Fatalf("expected 85, got %s", forward)
	}
}

func TestDeltaVoucherIsNegativePaid(t *testing.T) {
	voucher := domain.Invoice{PaidAmount: amt(300)}
	if got := Delta(voucher); !got.Equal(amt(-300)) {
		t.Fatalf("expected -300, got %s", got)
	}
}

func TestBuildReportPeriodPartition(t *testing.T) {
	snap := &domain.Snapshot{
		Customers: []domain.Customer{
			{ID: "CUST-1", Name: "Al Karam", Category: "Wholesale", OpeningBalance: amt(1000)},
		},
		Invoices: []domain.Invoice{
			// before the window: feeds opening balance only
			{ID: "OLD", CustomerID: "CUST-1", TotalAmount: amt(400), PaidAmount: amt(100), CreatedAt: day(1, 12)},
			// inside the window
			{ID: "IN-SALE", CustomerID: "CUST-1", TotalAmount: amt(500), PaidAmount: amt(200), CreatedAt: day(10, 10)},
			{ID: "IN-RET", CustomerID: "CUST-1", TotalAmount: amt(100), IsReturn: true, CreatedAt: day(10, 15)},
			// after the window: ignored entirely
			{ID: "FUTURE", CustomerID: "CUST-1", TotalAmount: amt(9999), CreatedAt: day(20, 9)},
		},
	}

	report := BuildReport(snap, day(10, 0), day(10, 0))
	if len(report.CustomerLedgers) != 1 {
		t.Fatalf("expected 1 customer ledger, got %d", len(report.CustomerLedgers))
	}
	entry := report.CustomerLedgers[0]
	if !entry.OpeningBalance.Equal(amt(1300)) {
		t.Fatalf("opening: expected 1300, got %s", entry.OpeningBalance)
	}
	if !entry.InvoicedAmount.Equal(amt(500)) || !entry.PaidAmount.Equal(amt(200)) || !entry.ReturnAmount.Equal(amt(100)) {
		t.Fatalf("period activity wrong: %+v", entry)
	}
	// closing = 1300 + 500 - 100 - 200
	if !entry.ClosingBalance.Equal(amt(1500)) {
		t.Fatalf("closing: expected 1500, got %s", entry.ClosingBalance)
	}
	if !report.Stats.Revenue.Equal(amt(500)) {
		t.Fatalf("period revenue: expected 500, got %s", report.Stats.Revenue)
	}
	if !report.Stats.Receivables.Equal(entry.ClosingBalance) {
		t.Fatalf("receivables should equal sum of closings")
	}
}

func TestBuildReportEndOfDayBoundary(t *testing.T) {
	lastSecond := time.Date(2026, time.March, 10, 23, 59, 59, 0, time.UTC)
	nextMidnight := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		Customers: []domain.Customer{{ID: "CUST-1", Name: "A"}},
		Invoices: []domain.Invoice{
			{ID: "EDGE", CustomerID: "CUST-1", TotalAmount: amt(10), CreatedAt: lastSecond},
			{ID: "NEXT", CustomerID: "CUST-1", TotalAmount: amt(20), CreatedAt: nextMidnight},
		},
	}

	report := BuildReport(snap, day(10, 0), day(10, 0))
	if !report.CustomerLedgers[0].InvoicedAmount.Equal(amt(10)) {
		t.Fatalf("23:59:59 invoice must be inside the window, got invoiced %s", report.CustomerLedgers[0].InvoicedAmount)
	}
}

func TestBuildReportHoldInvoicesExcludedEverywhere(t *testing.T) {
	snap := &domain.Snapshot{
		Customers: []domain.Customer{{ID: "CUST-1", Name: "A", OpeningBalance: amt(100)}},
		Invoices: []domain.Invoice{
			{ID: "H1", CustomerID: "CUST-1", TotalAmount: amt(500), IsHold: true, CreatedAt: day(5, 10)},
		},
	}

	report := BuildReport(snap, day(1, 0), day(10, 0))
	entry := report.CustomerLedgers[0]
	if !entry.OpeningBalance.Equal(amt(100)) || !entry.ClosingBalance.Equal(amt(100)) {
		t.Fatalf("hold invoice leaked into the ledger: %+v", entry)
	}
	if len(report.HoldInvoices) != 1 || report.HoldInvoices[0].ID != "H1" {
		t.Fatalf("hold invoice missing from hold list")
	}
	if !report.Stats.Revenue.IsZero() {
		t.Fatalf("hold invoice counted as revenue")
	}
}

func TestCategoryRollupConservation(t *testing.T) {
	snap := &domain.Snapshot{
		Customers: []domain.Customer{
			{ID: "C1", Name: "One", Category: "Wholesale", OpeningBalance: amt(10)},
			{ID: "C2", Name: "Two", Category: "wholesale gold", OpeningBalance: amt(20)},
			{ID: "C3", Name: "Three", OpeningBalance: amt(30)}, // blank category
		},
		Invoices: []domain.Invoice{
			{ID: "I1", CustomerID: "C1", TotalAmount: amt(100), PaidAmount: amt(40), CreatedAt: day(5, 10)},
			{ID: "I2", CustomerID: "C3", TotalAmount: amt(50), IsReturn: true, CreatedAt: day(5, 11)},
		},
	}

	report := BuildReport(snap, day(1, 0), day(10, 0))

	var total domain.Amount
	for _, group := range report.CategoryLedgers {
		total = total.Add(group.ClosingBalance)
	}
	var expected domain.Amount
	for _, entry := range report.CustomerLedgers {
		expected = expected.Add(entry.ClosingBalance)
	}
	if !total.Equal(expected) {
		t.Fatalf("category rollup loses money: %s vs %s", total, expected)
	}

	names := make([]string, 0, len(report.CategoryLedgers))
	for _, group := range report.CategoryLedgers {
		names = append(names, group.Category)
	}
	// case-insensitive alphabetical, blank mapped to the default bucket
	want := []string{"Uncategorized", "Wholesale", "wholesale gold"}
	if len(names) != len(want) {
		t.Fatalf("expected %d categories, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("category order: expected %v, got %v", want, names)
		}
	}
}

func TestProductSalesUsesLiveCostAndFallbacks(t *testing.T) {
	snap := &domain.Snapshot{
		Customers: []domain.Customer{{ID: "C1", Name: "One"}},
		Products: []domain.Product{
			{ID: "P1", Name: "Cement", Category: "Building", Unit: "Bags", Cost: amt(600), Price: amt(700)},
		},
		Invoices: []domain.Invoice{
			{
				ID: "I1", CustomerID: "C1", TotalAmount: amt(1500), CreatedAt: day(5, 10),
				Items: []domain.InvoiceItem{
					{ProductID: "P1", Quantity: amt(2), Price: amt(650)},
					{ProductID: "GONE", Quantity: amt(1), Price: amt(200)},
				},
			},
		},
	}

	report := BuildReport(snap, day(1, 0), day(10, 0))
	if len(report.ProductSales) != 2 {
		t.Fatalf("expected 2 product rows, got %d", len(report.ProductSales))
	}

	// sorted by revenue descending: P1 (1300) before GONE (200)
	first, second := report.ProductSales[0], report.ProductSales[1]
	if first.ID != "P1" || second.ID != "GONE" {
		t.Fatalf("expected revenue-descending order, got %s then %s", first.ID, second.ID)
	}
	if !first.Cost.Equal(amt(1200)) {
		t.Fatalf("live cost: expected 1200, got %s", first.Cost)
	}
	if second.Name != UnknownProductName || second.Category != DefaultCategoryName || second.Unit != DefaultUnit {
		t.Fatalf("missing-product fallbacks wrong: %+v", second)
	}
	if !second.Cost.IsZero() {
		t.Fatalf("missing product must cost 0, got %s", second.Cost)
	}
	if !report.Stats.Profit.Equal(amt(300)) {
		t.Fatalf("profit: expected 1500-1200=300, got %s", report.Stats.Profit)
	}
}

func TestMarginGuard(t *testing.T) {
	if got := marginPercent(amt(100), amt(0)); !got.IsZero() {
		t.Fatalf("zero revenue must give zero margin, got %s", got)
	}
	if got := marginPercent(amt(100), amt(-50)); !got.IsZero() {
		t.Fatalf("negative revenue must give zero margin, got %s", got)
	}
	if got := marginPercent(amt(1), amt(3)); got.String() != "33.3" {
		t.Fatalf("expected 33.3, got %s", got)
	}
}

func TestDashboardStatsBuckets(t *testing.T) {
	from := day(10, 0)
	to := day(11, 0)
	snap := &domain.Snapshot{
		Customers: []domain.Customer{
			{ID: "C1", Name: "One", OpeningBalance: amt(100)},
			{ID: "C2", Name: "Two"},
		},
		Products: []domain.Product{
			{ID: "P1", Name: "Cement", Cost: amt(10)},
		},
		Invoices: []domain.Invoice{
			{ID: "S", CustomerID: "C1", TotalAmount: amt(200), PaidAmount: amt(50), CreatedAt: day(10, 12),
				Items: []domain.InvoiceItem{{ProductID: "P1", Quantity: amt(3), Price: amt(60)}}},
			{ID: "R", CustomerID: "C1", TotalAmount: amt(40), IsReturn: true, CreatedAt: day(10, 13)},
			{ID: "H", CustomerID: "C2", TotalAmount: amt(999), IsHold: true, CreatedAt: day(10, 14)},
			// outside the filter but still part of total receivable
			{ID: "OLD", CustomerID: "C2", TotalAmount: amt(70), PaidAmount: amt(20), CreatedAt: day(1, 9)},
		},
	}

	stats := DashboardStats(snap, &from, &to)
	if !stats.Revenue.Equal(amt(200)) || stats.SalesCount != 1 {
		t.Fatalf("revenue bucket wrong: %+v", stats)
	}
	if !stats.Returns.Equal(amt(40)) || stats.HoldCount != 1 {
		t.Fatalf("return/hold buckets wrong: %+v", stats)
	}
	if !stats.NetRevenue.Equal(amt(160)) {
		t.Fatalf("net revenue: expected 160, got %s", stats.NetRevenue)
	}
	if !stats.CostOfGoods.Equal(amt(30)) {
		t.Fatalf("cost of goods: expected 30, got %s", stats.CostOfGoods)
	}
	if !stats.Profit.Equal(amt(130)) {
		t.Fatalf("profit: expected 130, got %s", stats.Profit)
	}
	if stats.CustomerCount != 2 {
		t.Fatalf("customer count: expected 2, got %d", stats.CustomerCount)
	}

	// whole-history receivable: 100 + (200-50) + (-40) + (70-20), hold excluded
	if !stats.TotalReceivable.Equal(amt(260)) {
		t.Fatalf("total receivable: expected 260, got %s", stats.TotalReceivable)
	}
}

func TestDashboardStatsNoBounds(t *testing.T) {
	snap := &domain.Snapshot{
		Invoices: []domain.Invoice{
			{ID: "S1", TotalAmount: amt(10), CreatedAt: day(1, 1)},
			{ID: "S2", TotalAmount: amt(20), CreatedAt: day(25, 1)},
		},
	}
	stats := DashboardStats(snap, nil, nil)
	if !stats.Revenue.Equal(amt(30)) || stats.SalesCount != 2 {
		t.Fatalf("unbounded dashboard should see everything: %+v", stats)
	}
}

func TestDashboardStatsSingleBoundIsIgnored(t *testing.T) {
	snap := &domain.Snapshot{
		Invoices: []domain.Invoice{
			{ID: "S1", TotalAmount: amt(10), CreatedAt: day(1, 1)},
			{ID: "S2", TotalAmount: amt(20), CreatedAt: day(25, 1)},
		},
	}

	// The date filter only engages when both bounds are present.
	from := day(20, 0)
	stats := DashboardStats(snap, &from, nil)
	if !stats.Revenue.Equal(amt(30)) || stats.SalesCount != 2 {
		t.Fatalf("from-only dashboard must be all-time: %+v", stats)
	}

	to := day(20, 0)
	stats = DashboardStats(snap, nil, &to)
	if !stats.Revenue.Equal(amt(30)) || stats.SalesCount != 2 {
		t.Fatalf("to-only dashboard must be all-time: %+v", stats)
	}

	end := day(26, 0)
	stats = DashboardStats(snap, &from, &end)
	if !stats.Revenue.Equal(amt(20)) || stats.SalesCount != 1 {
		t.Fatalf("bounded dashboard should see only S2: %+v", stats)
	}
}
