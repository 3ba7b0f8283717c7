package domain

import "time"

// Actor identifies the authenticated tenant on a request. Every entity below is
// partitioned by OwnerID; nothing is ever visible or mutable across owners.
type Actor struct {
	OwnerID  string
	Username string
}

type OwnerProfile struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name"`
	Business    string `json:"business"`
}

type Customer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Category       string `json:"category"`
	OpeningBalance Amount `json:"openingBalance"`
	OwnerID        string `json:"-"`
}

type CategoryKind string

const (
	CustomerCategoryKind CategoryKind = "customer"
	ProductCategoryKind  CategoryKind = "product"
)

func (k CategoryKind) Valid() bool {
	return k == CustomerCategoryKind || k == ProductCategoryKind
}

// IDPrefix is the auto-generation prefix for blank caller-supplied ids.
func (k CategoryKind) IDPrefix() string {
	if k == ProductCategoryKind {
		return "PCAT"
	}
	return "CCAT"
}

type Category struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"-"`
}

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	Cost     Amount `json:"cost"`
	Price    Amount `json:"price"`
	Stock    int64  `json:"stock"`
	OwnerID  string `json:"-"`
}

type InvoiceItem struct {
	ProductID string `json:"productId"`
	Quantity  Amount `json:"quantity"`
	Price     Amount `json:"price"`
}

type Invoice struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customerId"`
	TotalAmount    Amount        `json:"totalAmount"`
	PaidAmount     Amount        `json:"paidAmount"`
	DiscountAmount Amount        `json:"discountAmount"`
	IsReturn       bool          `json:"isReturn"`
	IsHold         bool          `json:"isHold"`
	CreatedAt      time.Time     `json:"createdAt"`
	OwnerID        string        `json:"-"`
	Items          []InvoiceItem `json:"items"`
}

type InvoiceMode string

const (
	ModeSale    InvoiceMode = "sale"
	ModeReturn  InvoiceMode = "return"
	ModeHold    InvoiceMode = "hold"
	ModeVoucher InvoiceMode = "voucher"
)

// Mode derives the invoice mode from its flags. A voucher is a zero-total,
// zero-item invoice recording a cash collection; a real sale whose total
// happens to be zero is indistinguishable from one by convention.
func (i Invoice) Mode() InvoiceMode {
	switch {
	case i.IsHold:
		return ModeHold
	case i.IsReturn:
		return ModeReturn
	case i.TotalAmount.IsZero() && len(i.Items) == 0 && i.PaidAmount.IsPositive():
		return ModeVoucher
	default:
		return ModeSale
	}
}

// ---- requests ----

type CustomerSaveRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Category       string `json:"category"`
	OpeningBalance Amount `json:"openingBalance"`
}

type ProductSaveRequest struct {
	// OriginalID carries the current primary key on rename; empty otherwise.
	OriginalID string `json:"originalId"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Unit       string `json:"unit"`
	Cost       Amount `json:"cost"`
	Price      Amount `json:"price"`
}

type CategorySaveRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InvoiceItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  Amount `json:"quantity"`
	Price     Amount `json:"price"`
}

type InvoiceRequest struct {
	CustomerID     string               `json:"customerId"`
	TotalAmount    Amount               `json:"totalAmount"`
	PaidAmount     Amount               `json:"paidAmount"`
	DiscountAmount Amount               `json:"discountAmount"`
	IsReturn       bool                 `json:"isReturn"`
	IsHold         bool                 `json:"isHold"`
	Items          []InvoiceItemRequest `json:"items"`
}

type SmartReturnRequest struct {
	OriginalInvoiceID string               `json:"originalInvoiceId"`
	CustomerID        string               `json:"customerId"`
	TotalReturnAmount Amount               `json:"totalReturnAmount"`
	Items             []InvoiceItemRequest `json:"items"`
}

type VoucherRequest struct {
	CustomerID string `json:"customerId"`
	Amount     Amount `json:"amount"`
}

type VoucherUpdateRequest struct {
	Amount Amount `json:"amount"`
}

type PaymentUpdate struct {
	ID             string `json:"id"`
	PaidAmount     Amount `json:"paidAmount"`
	DiscountAmount Amount `json:"discountAmount"`
}

type ProductPriceUpdate struct {
	ID    string `json:"id"`
	Cost  Amount `json:"cost"`
	Price Amount `json:"price"`
}

// InvoicePatch is a narrow bulk-field update; nil fields are left untouched.
type InvoicePatch struct {
	ID             string
	PaidAmount     *Amount
	DiscountAmount *Amount
	IsHold         *bool
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	OwnerID     string `json:"owner_id"`
	ExpiresAt   string `json:"expires_at"`
}

// ---- report structures ----

type CustomerLedger struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	OpeningBalance Amount `json:"openingBalance"`
	InvoicedAmount Amount `json:"invoicedAmount"`
	ReturnAmount   Amount `json:"returnAmount"`
	PaidAmount     Amount `json:"paidAmount"`
	ClosingBalance Amount `json:"closingBalance"`
}

type CategoryLedger struct {
	Category       string           `json:"category"`
	Customers      []CustomerLedger `json:"customers"`
	OpeningBalance Amount           `json:"openingBalance"`
	InvoicedAmount Amount           `json:"invoicedAmount"`
	ReturnAmount   Amount           `json:"returnAmount"`
	PaidAmount     Amount           `json:"paidAmount"`
	ClosingBalance Amount           `json:"closingBalance"`
}

type ProductSales struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	Qty      Amount `json:"qty"`
	Revenue  Amount `json:"revenue"`
	Cost     Amount `json:"cost"`
	Profit   Amount `json:"profit"`
}

type ProductCategoryLedger struct {
	Category     string         `json:"category"`
	Products     []ProductSales `json:"products"`
	TotalQty     Amount         `json:"totalQty"`
	TotalRevenue Amount         `json:"totalRevenue"`
	TotalCost    Amount         `json:"totalCost"`
	TotalProfit  Amount         `json:"totalProfit"`
}

type LedgerStats struct {
	Revenue     Amount `json:"revenue"`
	Profit      Amount `json:"profit"`
	Margin      Amount `json:"margin"`
	Receivables Amount `json:"receivables"`
}

type LedgerReport struct {
	CustomerLedgers        []CustomerLedger        `json:"customerLedgers"`
	CategoryLedgers        []CategoryLedger        `json:"categoryLedgers"`
	ProductSales           []ProductSales          `json:"productSales"`
	ProductCategoryLedgers []ProductCategoryLedger `json:"productCategoryLedgers"`
	AllProducts            []Product               `json:"allProducts"`
	AllCustomers           []Customer              `json:"allCustomers"`
	HoldInvoices           []Invoice               `json:"holdInvoices"`
	Stats                  LedgerStats             `json:"stats"`
}

type DashboardStats struct {
	Revenue         Amount `json:"revenue"`
	Returns         Amount `json:"returns"`
	NetRevenue      Amount `json:"netRevenue"`
	CostOfGoods     Amount `json:"costOfGoods"`
	Profit          Amount `json:"profit"`
	Margin          Amount `json:"margin"`
	SalesCount      int    `json:"salesCount"`
	HoldCount       int    `json:"holdCount"`
	CustomerCount   int    `json:"customerCount"`
	TotalReceivable Amount `json:"totalReceivable"`
}

// Snapshot is one internally consistent read of an owner's entire book. All
// report figures are derived from a single snapshot; no mid-computation reads.
type Snapshot struct {
	Customers []Customer // sorted by name
	Products  []Product  // sorted by name
	Invoices  []Invoice  // with items, any order
}
