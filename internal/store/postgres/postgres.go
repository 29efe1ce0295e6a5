// Package postgres implements the Repository against PostgreSQL. Sale
// finalization and day closure run inside serializable transactions with
// row locks, so stock and receipt sequences stay consistent under
// concurrent cashiers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, barcode, price, stock_quantity, active, COALESCE(category_id,'')
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.StockQuantity, &p.Active, &p.CategoryID); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, barcode, price, stock_quantity, active, COALESCE(category_id,'')
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.StockQuantity, &p.Active, &p.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, barcode, price, stock_quantity, active, COALESCE(category_id,'')
		FROM products
		WHERE active = true
			AND (name ILIKE '%' || $1 || '%' OR barcode ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.StockQuantity, &p.Active, &p.CategoryID); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" {
		p.ID = xid.New("prod")
	}
	p.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, price, stock_quantity, active, category_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, p.ID, p.Name, p.Barcode, p.Price, p.StockQuantity, p.Active, nullIfEmpty(p.CategoryID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("barcode %s: %w", p.Barcode, store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("category %s: %w", p.CategoryID, store.ErrNotFound)
		}
		return nil, err
	}

	created := p
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, price = $4, stock_quantity = $5, active = $6, category_id = $7, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Barcode, p.Price, p.StockQuantity, p.Active, nullIfEmpty(p.CategoryID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("barcode %s: %w", p.Barcode, store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("category %s: %w", p.CategoryID, store.ErrNotFound)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := p
	return &updated, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.color, COUNT(p.id) FILTER (WHERE p.active)::int
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id, c.name, c.color
		ORDER BY c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.ProductCount); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 {
		return nil, store.ErrValidation
	}

	now := time.Now()

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := uniqueProductIDs(draft.Lines)
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price, stock_quantity
		FROM products
		WHERE active = true AND id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	type lockedProduct struct {
		name  string
		price decimal.Decimal
		stock int
	}
	productMap := make(map[string]*lockedProduct, len(ids))
	for productRows.Next() {
		var id string
		p := &lockedProduct{}
		if err := productRows.Scan(&id, &p.name, &p.price, &p.stock); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	subtotal := decimal.Zero
	items := make([]domain.SaleItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		product, exists := productMap[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if line.Quantity > product.stock {
			return nil, &store.InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: product.name,
				Requested:   line.Quantity,
				Available:   product.stock,
			}
		}
		product.stock -= line.Quantity

		lineTotal := product.price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, domain.SaleItem{
			ProductID:   line.ProductID,
			ProductName: product.name,
			UnitPrice:   product.price,
			Quantity:    line.Quantity,
			TotalPrice:  lineTotal,
		})
	}

	tax := subtotal.Mul(draft.TaxRate).Round(2)
	total := subtotal.Add(tax)
	if draft.AmountPaid.LessThan(total) {
		return nil, &store.InsufficientPaymentError{Total: total, Paid: draft.AmountPaid}
	}
	change := draft.AmountPaid.Sub(total)

	var seq int
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO receipt_counters (day, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET last_seq = receipt_counters.last_seq + 1
		RETURNING last_seq
	`, now.Format(domain.DateFormat)).Scan(&seq)
	if err != nil {
		return nil, err
	}

	sale := &domain.Sale{
		ID:            xid.New("sale"),
		ReceiptNumber: fmt.Sprintf("RC-%s-%04d", now.Format("20060102"), seq),
		CashierID:     draft.CashierID,
		CashierName:   draft.CashierName,
		Subtotal:      subtotal,
		TaxAmount:     tax,
		TotalAmount:   total,
		PaymentMethod: draft.PaymentMethod,
		AmountPaid:    draft.AmountPaid,
		ChangeAmount:  change,
		Status:        domain.SaleStatusCompleted,
		CustomerEmail: draft.CustomerEmail,
		Notes:         draft.Notes,
		CreatedAt:     now,
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, receipt_number, cashier_id, cashier_name, subtotal, tax_amount,
			total_amount, payment_method, amount_paid, change_amount, status,
			customer_email, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.ReceiptNumber, sale.CashierID, sale.CashierName, sale.Subtotal,
		sale.TaxAmount, sale.TotalAmount, sale.PaymentMethod, sale.AmountPaid,
		sale.ChangeAmount, sale.Status, nullIfEmpty(sale.CustomerEmail),
		nullIfEmpty(sale.Notes), sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].ID = xid.New("item")
		items[i].SaleID = sale.ID
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, unit_price, quantity, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, items[i].ID, items[i].SaleID, items[i].ProductID, items[i].ProductName,
			items[i].UnitPrice, items[i].Quantity, items[i].TotalPrice)
		if err != nil {
			return nil, err
		}

		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = now()
			WHERE id = $2 AND stock_quantity >= $1
		`, items[i].Quantity, items[i].ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, &store.InsufficientStockError{
				ProductID:   items[i].ProductID,
				ProductName: items[i].ProductName,
				Requested:   items[i].Quantity,
			}
		}
	}
	sale.Items = items

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, receipt_number, cashier_id, cashier_name, subtotal, tax_amount,
			total_amount, payment_method, amount_paid, change_amount, status,
			COALESCE(customer_email,''), COALESCE(notes,''), created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(
		&sale.ID,
		&sale.ReceiptNumber,
		&sale.CashierID,
		&sale.CashierName,
		&sale.Subtotal,
		&sale.TaxAmount,
		&sale.TotalAmount,
		&sale.PaymentMethod,
		&sale.AmountPaid,
		&sale.ChangeAmount,
		&sale.Status,
		&sale.CustomerEmail,
		&sale.Notes,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, unit_price, quantity, total_price
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Items = items

	return &sale, nil
}

func (s *Store) GetSalesReport(ctx context.Context, from, to time.Time) (*domain.SalesReport, error) {
	report := &domain.SalesReport{
		DailySales:     make([]domain.DailySalesRow, 0, 31),
		PaymentMethods: make([]domain.PaymentMethodRow, 0, 3),
		TopProducts:    make([]domain.ProductSalesRow, 0, 10),
	}

	dailyRows, err := s.db.QueryContext(ctx, `
		SELECT created_at::date::text, COALESCE(SUM(total_amount),0), COUNT(*)::bigint
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY created_at::date
		ORDER BY created_at::date
	`, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	for dailyRows.Next() {
		var row domain.DailySalesRow
		if err := dailyRows.Scan(&row.Date, &row.Total, &row.Count); err != nil {
			_ = dailyRows.Close()
			return nil, err
		}
		report.DailySales = append(report.DailySales, row)
	}
	if err := dailyRows.Err(); err != nil {
		_ = dailyRows.Close()
		return nil, err
	}
	_ = dailyRows.Close()

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COALESCE(SUM(total_amount),0), COUNT(*)::bigint
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	for paymentRows.Next() {
		var row domain.PaymentMethodRow
		if err := paymentRows.Scan(&row.PaymentMethod, &row.Total, &row.Count); err != nil {
			_ = paymentRows.Close()
			return nil, err
		}
		report.PaymentMethods = append(report.PaymentMethods, row)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return nil, err
	}
	_ = paymentRows.Close()

	report.TopProducts, err = s.topProducts(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount),0), COUNT(*)::bigint
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`, domain.SaleStatusCompleted, from, to).Scan(
		&report.Summary.TotalSales,
		&report.Summary.TotalTransactions,
	)
	if err != nil {
		return nil, err
	}
	if report.Summary.TotalTransactions > 0 {
		report.Summary.AverageTransactionValue = report.Summary.TotalSales.
			Div(decimal.NewFromInt(report.Summary.TotalTransactions)).Round(2)
	} else {
		report.Summary.AverageTransactionValue = decimal.Zero
	}

	return report, nil
}

func (s *Store) topProducts(ctx context.Context, from, to time.Time, limit int) ([]domain.ProductSalesRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, si.product_name, SUM(si.quantity)::bigint, COALESCE(SUM(si.total_price),0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.status = $1 AND s.created_at >= $2 AND s.created_at < $3
		GROUP BY si.product_id, si.product_name
		ORDER BY SUM(si.quantity) DESC
		LIMIT $4
	`, domain.SaleStatusCompleted, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.ProductSalesRow, 0, limit)
	for rows.Next() {
		var row domain.ProductSalesRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.TotalSold, &row.Revenue); err != nil {
			return nil, err
		}
		top = append(top, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top, nil
}

func (s *Store) GetSalespersonReport(ctx context.Context, from, to time.Time) ([]domain.SalespersonRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cashier_id, cashier_name, COUNT(*)::bigint, COALESCE(SUM(total_amount),0)
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY cashier_id, cashier_name
		ORDER BY SUM(total_amount) DESC
	`, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SalespersonRow, 0, 8)
	for rows.Next() {
		var row domain.SalespersonRow
		if err := rows.Scan(&row.CashierID, &row.CashierName, &row.TransactionCount, &row.TotalSales); err != nil {
			return nil, err
		}
		if row.TransactionCount > 0 {
			row.AverageTransactionValue = row.TotalSales.
				Div(decimal.NewFromInt(row.TransactionCount)).Round(2)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CloseDay(ctx context.Context, day time.Time, closedByID, closedByName string) (*domain.DailyClosure, error) {
	date := day.Format(domain.DateFormat)
	from := day
	to := day.AddDate(0, 0, 1)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM daily_closures WHERE closure_date = $1)
	`, date).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrAlreadyClosed
	}

	closure := &domain.DailyClosure{
		ID:           xid.New("closure"),
		ClosureDate:  date,
		ClosedByID:   closedByID,
		ClosedByName: closedByName,
		CreatedAt:    time.Now(),
	}

	err = pgTx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount),0),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_method = $4),0),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_method = $5),0),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_method = $6),0),
			COUNT(*)::bigint
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`, domain.SaleStatusCompleted, from, to,
		domain.PaymentCash, domain.PaymentCard, domain.PaymentQRCode).Scan(
		&closure.TotalSales,
		&closure.CashSales,
		&closure.CardSales,
		&closure.QRCodeSales,
		&closure.TransactionCount,
	)
	if err != nil {
		return nil, err
	}
	if closure.TransactionCount == 0 {
		return nil, store.ErrNoSales
	}

	userRows, err := pgTx.QueryContext(ctx, `
		SELECT cashier_name, COUNT(*)::bigint, COALESCE(SUM(total_amount),0)
		FROM sales
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY cashier_name
		ORDER BY SUM(total_amount) DESC
	`, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	for userRows.Next() {
		var row domain.ClosureUserSummary
		if err := userRows.Scan(&row.UserName, &row.TransactionCount, &row.TotalSales); err != nil {
			_ = userRows.Close()
			return nil, err
		}
		closure.SalesByUser = append(closure.SalesByUser, row)
	}
	if err := userRows.Err(); err != nil {
		_ = userRows.Close()
		return nil, err
	}
	_ = userRows.Close()

	topRows, err := pgTx.QueryContext(ctx, `
		SELECT si.product_id, si.product_name, SUM(si.quantity)::bigint, COALESCE(SUM(si.total_price),0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.status = $1 AND s.created_at >= $2 AND s.created_at < $3
		GROUP BY si.product_id, si.product_name
		ORDER BY SUM(si.quantity) DESC
		LIMIT 10
	`, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	for topRows.Next() {
		var row domain.ProductSalesRow
		if err := topRows.Scan(&row.ProductID, &row.ProductName, &row.TotalSold, &row.Revenue); err != nil {
			_ = topRows.Close()
			return nil, err
		}
		closure.TopProducts = append(closure.TopProducts, row)
	}
	if err := topRows.Err(); err != nil {
		_ = topRows.Close()
		return nil, err
	}
	_ = topRows.Close()

	salesByUserJSON, err := json.Marshal(closure.SalesByUser)
	if err != nil {
		return nil, err
	}
	topProductsJSON, err := json.Marshal(closure.TopProducts)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO daily_closures (
			id, closure_date, closed_by_id, closed_by_name, total_sales,
			cash_sales, card_sales, qr_code_sales, transaction_count,
			sales_by_user, top_products, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, closure.ID, closure.ClosureDate, closure.ClosedByID, closure.ClosedByName,
		closure.TotalSales, closure.CashSales, closure.CardSales, closure.QRCodeSales,
		closure.TransactionCount, salesByUserJSON, topProductsJSON, closure.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyClosed
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return closure, nil
}

func (s *Store) GetClosureByDate(ctx context.Context, date string) (*domain.DailyClosure, error) {
	var closure domain.DailyClosure
	var salesByUserJSON, topProductsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, closure_date::text, closed_by_id, closed_by_name, total_sales,
			cash_sales, card_sales, qr_code_sales, transaction_count,
			sales_by_user, top_products, created_at
		FROM daily_closures
		WHERE closure_date = $1
	`, date).Scan(
		&closure.ID,
		&closure.ClosureDate,
		&closure.ClosedByID,
		&closure.ClosedByName,
		&closure.TotalSales,
		&closure.CashSales,
		&closure.CardSales,
		&closure.QRCodeSales,
		&closure.TransactionCount,
		&salesByUserJSON,
		&topProductsJSON,
		&closure.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(salesByUserJSON, &closure.SalesByUser); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(topProductsJSON, &closure.TopProducts); err != nil {
		return nil, err
	}

	return &closure, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(lines []domain.CartLine) []string {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			continue
		}
		set[line.ProductID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
