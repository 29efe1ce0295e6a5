// Package store defines the persistence contract for the POS backend and
// the error taxonomy shared by every implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist or
	// is inactive.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed or out-of-policy input.
	ErrValidation = errors.New("invalid input")

	// ErrInsufficientStock is the sentinel matched by
	// InsufficientStockError via errors.Is.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientPayment is the sentinel matched by
	// InsufficientPaymentError via errors.Is.
	ErrInsufficientPayment = errors.New("insufficient payment")

	// ErrAlreadyClosed is returned when a closure already exists for the
	// requested date.
	ErrAlreadyClosed = errors.New("day already closed")

	// ErrNoSales is returned when a closure is requested for a day with
	// no completed sales.
	ErrNoSales = errors.New("no sales to close")

	// ErrUnauthorized is returned when no actor is present on the context.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the actor's role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned on uniqueness collisions outside the
	// closure path, such as a duplicate barcode.
	ErrConflict = errors.New("conflict")
)

// InsufficientStockError reports which product ran short during a sale.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InsufficientPaymentError reports an amount paid below the sale total.
type InsufficientPaymentError struct {
	Total decimal.Decimal
	Paid  decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: total %s, paid %s",
		e.Total.StringFixed(2), e.Paid.StringFixed(2))
}

func (e *InsufficientPaymentError) Is(target error) bool {
	return target == ErrInsufficientPayment
}

// Repository is the persistence surface consumed by the service layer.
// Implementations must make CreateSale and CloseDay atomic with respect
// to concurrent callers.
type Repository interface {
	// Catalog.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// Sales.
	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)

	// Reporting. Ranges are half-open instant windows computed by the
	// caller from inclusive calendar dates.
	GetSalesReport(ctx context.Context, from, to time.Time) (*domain.SalesReport, error)
	GetSalespersonReport(ctx context.Context, from, to time.Time) ([]domain.SalespersonRow, error)

	// Day closure.
	CloseDay(ctx context.Context, day time.Time, closedByID, closedByName string) (*domain.DailyClosure, error)
	GetClosureByDate(ctx context.Context, date string) (*domain.DailyClosure, error)

	// Auth accounts.
	CreateUser(ctx context.Context, u domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
}
