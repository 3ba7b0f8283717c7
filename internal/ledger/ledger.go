// Package ledger holds the pure computation core: the balance formula, the
// period aggregator, and the dashboard aggregator. Everything here derives
// from a single store snapshot and touches no I/O, so every figure a report
// shows can be recomputed and property-tested in isolation.
package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayyanshiraz/inv/internal/domain"
)

// Fallbacks for line items whose product record no longer exists. Reports
// always read cost, name, and category live from the current product row.
const (
	UnknownProductName  = "Unknown"
	DefaultCategoryName = "Uncategorized"
	DefaultUnit         = "Bags"
)

var hundred = decimal.NewFromInt(100)

// Delta is the balance contribution of a single non-hold invoice: returns
// subtract their total, everything else adds total minus paid. A voucher
// (total=0) therefore contributes exactly -paidAmount.
func Delta(inv domain.Invoice) domain.Amount {
	if inv.IsReturn {
		return inv.TotalAmount.Neg()
	}
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// CurrentBalance computes a customer's running balance from its full invoice
// history. Hold invoices never contribute, regardless of age; the sum is
// order-independent.
func CurrentBalance(customer domain.Customer, invoices []domain.Invoice) domain.Amount {
	balance := customer.OpeningBalance
	for _, inv := range invoices {
		if inv.IsHold {
			continue
		}
		balance = balance.Add(Delta(inv))
	}
	return balance
}

// EndOfDay extends t to 23:59:59.999 in its own location, making a report's
// "to" date inclusive through the whole day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

// marginPercent is profit/revenue*100 rounded to one decimal, 0 whenever the
// denominator is non-positive (never NaN or infinity).
func marginPercent(profit, revenue domain.Amount) domain.Amount {
	if !revenue.IsPositive() {
		return domain.Amount{}
	}
	return domain.AmountFromDecimal(profit.Decimal.Div(revenue.Decimal).Mul(hundred).Round(1))
}

// BuildReport partitions the owner's entire history against [from, EndOfDay(to)]
// and rolls the results up by customer category and product category. Every
// non-hold invoice lands in exactly one bucket: before the window it feeds the
// period opening balance, inside it feeds period activity, after it is ignored.
func BuildReport(snap *domain.Snapshot, from, to time.Time) domain.LedgerReport {
	end := EndOfDay(to)

	productByID := make(map[string]domain.Product, len(snap.Products))
	for _, p := range snap.Products {
		productByID[p.ID] = p
	}

	invoicesByCustomer := make(map[string][]domain.Invoice)
	holdInvoices := make([]domain.Invoice, 0)
	for _, inv := range snap.Invoices {
		if inv.IsHold {
			holdInvoices = append(holdInvoices, inv)
			continue
		}
		invoicesByCustomer[inv.CustomerID] = append(invoicesByCustomer[inv.CustomerID], inv)
	}

	customerLedgers := make([]domain.CustomerLedger, 0, len(snap.Customers))
	for _, cust := range snap.Customers {
		entry := domain.CustomerLedger{
			ID:             cust.ID,
			Name:           cust.Name,
			Category:       categoryOrDefault(cust.Category),
			OpeningBalance: cust.OpeningBalance,
		}
		for _, inv := range invoicesByCustomer[cust.ID] {
			switch {
			case inv.CreatedAt.Before(from):
				entry.OpeningBalance = entry.OpeningBalance.Add(Delta(inv))
			case !inv.CreatedAt.After(end):
				if inv.IsReturn {
					entry.ReturnAmount = entry.ReturnAmount.Add(inv.TotalAmount)
				} else {
					entry.InvoicedAmount = entry.InvoicedAmount.Add(inv.TotalAmount)
					entry.PaidAmount = entry.PaidAmount.Add(inv.PaidAmount)
				}
			}
		}
		entry.ClosingBalance = entry.OpeningBalance.
			Add(entry.InvoicedAmount).
			Sub(entry.ReturnAmount).
			Sub(entry.PaidAmount)
		customerLedgers = append(customerLedgers, entry)
	}

	categoryLedgers := rollupCustomerCategories(customerLedgers)

	// Product-sales rollup over in-window, non-return sales only.
	var periodRevenue, periodCost domain.Amount
	salesByProduct := make(map[string]*domain.ProductSales)
	productOrder := make([]string, 0)
	for _, inv := range snap.Invoices {
		if inv.IsHold || inv.IsReturn || inv.CreatedAt.Before(from) || inv.CreatedAt.After(end) {
			continue
		}
		periodRevenue = periodRevenue.Add(inv.TotalAmount)
		for _, item := range inv.Items {
			product, ok := productByID[item.ProductID]
			if !ok {
				product = domain.Product{
					ID:       item.ProductID,
					Name:     UnknownProductName,
					Category: DefaultCategoryName,
					Unit:     DefaultUnit,
				}
			}
			lineCost := product.Cost.Mul(item.Quantity)
			periodCost = periodCost.Add(lineCost)

			sales, exists := salesByProduct[item.ProductID]
			if !exists {
				sales = &domain.ProductSales{
					ID:       item.ProductID,
					Name:     product.Name,
					Category: categoryOrDefault(product.Category),
					Unit:     unitOrDefault(product.Unit),
				}
				salesByProduct[item.ProductID] = sales
				productOrder = append(productOrder, item.ProductID)
			}
			sales.Qty = sales.Qty.Add(item.Quantity)
			sales.Revenue = sales.Revenue.Add(item.Price.Mul(item.Quantity))
			sales.Cost = sales.Cost.Add(lineCost)
		}
	}

	productSales := make([]domain.ProductSales, 0, len(productOrder))
	for _, id := range productOrder {
		sales := *salesByProduct[id]
		sales.Profit = sales.Revenue.Sub(sales.Cost)
		productSales = append(productSales, sales)
	}
	productCategoryLedgers := rollupProductCategories(productSales)
	sort.SliceStable(productSales, func(i, j int) bool {
		return productSales[i].Revenue.GreaterThan(productSales[j].Revenue)
	})

	var receivables domain.Amount
	for _, entry := range customerLedgers {
		receivables = receivables.Add(entry.ClosingBalance)
	}
	profit := periodRevenue.Sub(periodCost)

	return domain.LedgerReport{
		CustomerLedgers:        customerLedgers,
		CategoryLedgers:        categoryLedgers,
		ProductSales:           productSales,
		ProductCategoryLedgers: productCategoryLedgers,
		AllProducts:            snap.Products,
		AllCustomers:           snap.Customers,
		HoldInvoices:           holdInvoices,
		Stats: domain.LedgerStats{
			Revenue:     periodRevenue,
			Profit:      profit,
			Margin:      marginPercent(profit, periodRevenue),
			Receivables: receivables,
		},
	}
}

// DashboardStats aggregates over invoices optionally filtered to [from, to]
// with exact inclusive bounds (no end-of-day adjustment; intentionally simpler
// than the ledger report). The filter only engages when both bounds are set;
// a single bound means all-time figures. TotalReceivable deliberately ignores
// the filter: it is always computed account-wide over every non-hold invoice,
// so the figure reflects present-day truth whatever window is being viewed.
func DashboardStats(snap *domain.Snapshot, from, to *time.Time) domain.DashboardStats {
	stats := domain.DashboardStats{CustomerCount: len(snap.Customers)}

	productByID := make(map[string]domain.Product, len(snap.Products))
	for _, p := range snap.Products {
		productByID[p.ID] = p
	}

	windowed := from != nil && to != nil
	for _, inv := range snap.Invoices {
		if windowed && (inv.CreatedAt.Before(*from) || inv.CreatedAt.After(*to)) {
			continue
		}
		if inv.IsHold {
			stats.HoldCount++
			continue
		}
		if inv.IsReturn {
			stats.Returns = stats.Returns.Add(inv.TotalAmount)
			continue
		}
		stats.Revenue = stats.Revenue.Add(inv.TotalAmount)
		stats.SalesCount++
		for _, item := range inv.Items {
			stats.CostOfGoods = stats.CostOfGoods.Add(productByID[item.ProductID].Cost.Mul(item.Quantity))
		}
	}

	for _, cust := range snap.Customers {
		stats.TotalReceivable = stats.TotalReceivable.Add(cust.OpeningBalance)
	}
	for _, inv := range snap.Invoices {
		if inv.IsHold {
			continue
		}
		stats.TotalReceivable = stats.TotalReceivable.Add(Delta(inv))
	}

	stats.NetRevenue = stats.Revenue.Sub(stats.Returns)
	stats.Profit = stats.NetRevenue.Sub(stats.CostOfGoods)
	if stats.Revenue.IsPositive() {
		stats.Margin = marginPercent(stats.Profit, stats.NetRevenue)
	}
	return stats
}

func rollupCustomerCategories(ledgers []domain.CustomerLedger) []domain.CategoryLedger {
	byName := make(map[string]*domain.CategoryLedger)
	order := make([]string, 0)
	for _, entry := range ledgers {
		name := categoryOrDefault(entry.Category)
		group, ok := byName[name]
		if !ok {
			group = &domain.CategoryLedger{Category: name}
			byName[name] = group
			order = append(order, name)
		}
		group.Customers = append(group.Customers, entry)
		group.OpeningBalance = group.OpeningBalance.Add(entry.OpeningBalance)
		group.InvoicedAmount = group.InvoicedAmount.Add(entry.InvoicedAmount)
		group.ReturnAmount = group.ReturnAmount.Add(entry.ReturnAmount)
		group.PaidAmount = group.PaidAmount.Add(entry.PaidAmount)
		group.ClosingBalance = group.ClosingBalance.Add(entry.ClosingBalance)
	}

	sort.Slice(order, func(i, j int) bool {
		return strings.ToLower(order[i]) < strings.ToLower(order[j])
	})
	result := make([]domain.CategoryLedger, 0, len(order))
	for _, name := range order {
		result = append(result, *byName[name])
	}
	return result
}

func rollupProductCategories(sales []domain.ProductSales) []domain.ProductCategoryLedger {
	byName := make(map[string]*domain.ProductCategoryLedger)
	order := make([]string, 0)
	for _, entry := range sales {
		name := categoryOrDefault(entry.Category)
		group, ok := byName[name]
		if !ok {
			group = &domain.ProductCategoryLedger{Category: name}
			byName[name] = group
			order = append(order, name)
		}
		group.Products = append(group.Products, entry)
		group.TotalQty = group.TotalQty.Add(entry.Qty)
		group.TotalRevenue = group.TotalRevenue.Add(entry.Revenue)
		group.TotalCost = group.TotalCost.Add(entry.Cost)
		group.TotalProfit = group.TotalProfit.Add(entry.Profit)
	}

	sort.Slice(order, func(i, j int) bool {
		return strings.ToLower(order[i]) < strings.ToLower(order[j])
	})
	result := make([]domain.ProductCategoryLedger, 0, len(order))
	for _, name := range order {
		group := byName[name]
		sort.SliceStable(group.Products, func(i, j int) bool {
			return group.Products[i].Revenue.GreaterThan(group.Products[j].Revenue)
		})
		result = append(result, *group)
	}
	return result
}

func categoryOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultCategoryName
	}
	return name
}

func unitOrDefault(unit string) string {
	if strings.TrimSpace(unit) == "" {
		return DefaultUnit
	}
	return unit
}
