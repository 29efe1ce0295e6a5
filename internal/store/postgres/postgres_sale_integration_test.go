package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

func TestCreateSaleDecrementsStockAndNumbersReceipt(t *testing.T) {
	databaseURL := os.Getenv("TILLPOINT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLPOINT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-sale-it-%d", stamp)
	barcode := fmt.Sprintf("it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE cashier_id = $1`, "kasir-it")
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, price, stock_quantity, active, created_at, updated_at)
		VALUES ($1, 'Integration Widget', $2, 4.50, 5, true, now(), now())
	`, productID, barcode); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	draft := domain.SaleDraft{
		Lines:         []domain.CartLine{{ProductID: productID, Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
		AmountPaid:    decimal.RequireFromString("20.00"),
		CashierID:     "kasir-it",
		CashierName:   "kasir-it",
		TaxRate:       decimal.RequireFromString("0.1"),
	}

	sale, err := s.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if matched := regexp.MustCompile(`^RC-\d{8}-\d{4}$`).MatchString(sale.ReceiptNumber); !matched {
		t.Fatalf("receipt number %q does not match RC-YYYYMMDD-NNNN", sale.ReceiptNumber)
	}
	if !sale.Subtotal.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("subtotal = %s, want 9.00", sale.Subtotal)
	}
	if !sale.TaxAmount.Equal(decimal.RequireFromString("0.90")) {
		t.Fatalf("tax = %s, want 0.90", sale.TaxAmount)
	}
	if !sale.TotalAmount.Equal(decimal.RequireFromString("9.90")) {
		t.Fatalf("total = %s, want 9.90", sale.TotalAmount)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_quantity FROM products WHERE id = $1
	`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 3 {
		t.Fatalf("expected stock 3 after sale, got %d", stock)
	}

	second, err := s.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if second.ReceiptNumber == sale.ReceiptNumber {
		t.Fatalf("receipt numbers must be unique, both %s", sale.ReceiptNumber)
	}

	// 1 unit left; a 2-unit draft must fail without touching stock.
	if _, err := s.CreateSale(ctx, draft); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_quantity FROM products WHERE id = $1
	`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock after failure: %v", err)
	}
	if stock != 1 {
		t.Fatalf("expected stock 1 after failed sale, got %d", stock)
	}
}
