package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Barcode       string          `json:"barcode"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Active        bool            `json:"active"`
	CategoryID    string          `json:"category_id"`
}

type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	ProductCount int    `json:"product_count"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name"`
	Barcode       string          `json:"barcode"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CategoryID    string          `json:"category_id"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	Barcode       *string          `json:"barcode,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	CategoryID    *string          `json:"category_id,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateSaleRequest struct {
	Items         []CartLine      `json:"items"`
	PaymentMethod string          `json:"payment_method"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// SaleDraft is the validated input the store turns into a persisted sale.
// Pricing is recomputed from the catalog inside the store transaction; the
// draft only carries what the cashier entered plus the tax policy in force.
type SaleDraft struct {
	Lines         []CartLine
	PaymentMethod string
	AmountPaid    decimal.Decimal
	CustomerEmail string
	Notes         string
	CashierID     string
	CashierName   string
	TaxRate       decimal.Decimal
}

type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type Sale struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	CashierID     string          `json:"cashier_id"`
	CashierName   string          `json:"cashier_name"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	Status        string          `json:"status"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items"`
}

type DailySalesRow struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}

type PaymentMethodRow struct {
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Count         int64           `json:"count"`
}

type ProductSalesRow struct {
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	TotalSold   int64           `json:"total_sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type ReportSummary struct {
	TotalSales              decimal.Decimal `json:"total_sales"`
	TotalTransactions       int64           `json:"total_transactions"`
	AverageTransactionValue decimal.Decimal `json:"average_transaction_value"`
}

type SalesReport struct {
	StartDate      string             `json:"start_date"`
	EndDate        string             `json:"end_date"`
	DailySales     []DailySalesRow    `json:"daily_sales"`
	PaymentMethods []PaymentMethodRow `json:"payment_methods"`
	TopProducts    []ProductSalesRow  `json:"top_products"`
	Summary        ReportSummary      `json:"summary"`
}

type SalespersonRow struct {
	CashierID               string          `json:"cashier_id"`
	CashierName             string          `json:"cashier_name"`
	TransactionCount        int64           `json:"transaction_count"`
	TotalSales              decimal.Decimal `json:"total_sales"`
	AverageTransactionValue decimal.Decimal `json:"average_transaction_value"`
}

type SalespersonReport struct {
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	SalesByUser []SalespersonRow `json:"sales_by_user"`
}

type ClosureUserSummary struct {
	UserName         string          `json:"user_name"`
	TransactionCount int64           `json:"transaction_count"`
	TotalSales       decimal.Decimal `json:"total_sales"`
}

type DailyClosure struct {
	ID               string               `json:"id"`
	ClosureDate      string               `json:"closure_date"`
	ClosedByID       string               `json:"closed_by_id"`
	ClosedByName     string               `json:"closed_by_name"`
	TotalSales       decimal.Decimal      `json:"total_sales"`
	CashSales        decimal.Decimal      `json:"cash_sales"`
	CardSales        decimal.Decimal      `json:"card_sales"`
	QRCodeSales      decimal.Decimal      `json:"qr_code_sales"`
	TransactionCount int64                `json:"transaction_count"`
	SalesByUser      []ClosureUserSummary `json:"sales_by_user"`
	TopProducts      []ProductSalesRow    `json:"top_products"`
	CreatedAt        time.Time            `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentQRCode = "qr_code"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusCancelled = "cancelled"
)

const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)

const DateFormat = "2006-01-02"
