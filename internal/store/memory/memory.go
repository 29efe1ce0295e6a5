// Package memory provides an in-memory Repository used for development
// mode and tests. A single mutex serializes the sale and closure paths,
// giving the same atomicity the SQL transactions provide.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type Store struct {
	mu         sync.RWMutex
	products   map[string]*domain.Product
	categories map[string]*domain.Category
	sales      map[string]*domain.Sale
	saleOrder  []string
	receiptSeq map[string]int
	closures   map[string]*domain.DailyClosure
	users      map[string]*domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:   make(map[string]*domain.Product),
		categories: make(map[string]*domain.Category),
		sales:      make(map[string]*domain.Sale),
		receiptSeq: make(map[string]int),
		closures:   make(map[string]*domain.DailyClosure),
		users:      make(map[string]*domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small demo catalog.
func NewSeeded() *Store {
	s := New()
	cats := []domain.Category{
		{ID: "cat-beverages", Name: "Beverages", Color: "#2563eb"},
		{ID: "cat-snacks", Name: "Snacks", Color: "#d97706"},
		{ID: "cat-household", Name: "Household", Color: "#059669"},
	}
	for i := range cats {
		c := cats[i]
		s.categories[c.ID] = &c
	}
	prods := []domain.Product{
		{ID: "prod-espresso", Name: "Espresso Beans 500g", Barcode: "8991002601234", Price: decimal.RequireFromString("12.50"), StockQuantity: 40, Active: true, CategoryID: "cat-beverages"},
		{ID: "prod-green-tea", Name: "Green Tea 20pk", Barcode: "8991002601241", Price: decimal.RequireFromString("4.75"), StockQuantity: 60, Active: true, CategoryID: "cat-beverages"},
		{ID: "prod-cola", Name: "Cola 330ml", Barcode: "8991002601258", Price: decimal.RequireFromString("1.20"), StockQuantity: 120, Active: true, CategoryID: "cat-beverages"},
		{ID: "prod-tortilla", Name: "Tortilla Chips", Barcode: "8991002601265", Price: decimal.RequireFromString("3.10"), StockQuantity: 55, Active: true, CategoryID: "cat-snacks"},
		{ID: "prod-choco-bar", Name: "Chocolate Bar 90g", Barcode: "8991002601272", Price: decimal.RequireFromString("2.40"), StockQuantity: 80, Active: true, CategoryID: "cat-snacks"},
		{ID: "prod-dish-soap", Name: "Dish Soap 750ml", Barcode: "8991002601289", Price: decimal.RequireFromString("3.95"), StockQuantity: 35, Active: true, CategoryID: "cat-household"},
		{ID: "prod-sponges", Name: "Kitchen Sponges 5pk", Barcode: "8991002601296", Price: decimal.RequireFromString("2.15"), StockQuantity: 0, Active: true, CategoryID: "cat-household"},
		{ID: "prod-retired", Name: "Retired Lamp Oil", Barcode: "8991002601302", Price: decimal.RequireFromString("6.00"), StockQuantity: 10, Active: false, CategoryID: "cat-household"},
	}
	for i := range prods {
		p := prods[i]
		s.products[p.ID] = &p
	}
	return s
}

func cloneProduct(p *domain.Product) *domain.Product {
	cp := *p
	return &cp
}

func cloneSale(s *domain.Sale) *domain.Sale {
	cp := *s
	cp.Items = slices.Clone(s.Items)
	return &cp
}

func cloneClosure(c *domain.DailyClosure) *domain.DailyClosure {
	cp := *c
	cp.SalesByUser = slices.Clone(c.SalesByUser)
	cp.TopProducts = slices.Clone(c.TopProducts)
	return &cp
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Product
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Barcode), q) {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.Barcode == p.Barcode {
			return nil, fmt.Errorf("barcode %s: %w", p.Barcode, store.ErrConflict)
		}
	}
	if p.CategoryID != "" {
		if _, ok := s.categories[p.CategoryID]; !ok {
			return nil, fmt.Errorf("category %s: %w", p.CategoryID, store.ErrNotFound)
		}
	}
	if p.ID == "" {
		p.ID = xid.New("prod")
	}
	p.Active = true
	s.products[p.ID] = cloneProduct(&p)
	return cloneProduct(&p), nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[p.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id != p.ID && other.Barcode == p.Barcode {
			return nil, fmt.Errorf("barcode %s: %w", p.Barcode, store.ErrConflict)
		}
	}
	if p.CategoryID != "" {
		if _, ok := s.categories[p.CategoryID]; !ok {
			return nil, fmt.Errorf("category %s: %w", p.CategoryID, store.ErrNotFound)
		}
	}
	*existing = p
	return cloneProduct(existing), nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cc := *c
		for _, p := range s.products {
			if p.Active && p.CategoryID == c.ID {
				cc.ProductCount++
			}
		}
		out = append(out, cc)
	}
	slices.SortFunc(out, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every line before mutating anything so a late failure cannot
	// leave a partial decrement behind.
	type pricedLine struct {
		product *domain.Product
		qty     int
		total   decimal.Decimal
	}
	lines := make([]pricedLine, 0, len(draft.Lines))
	remaining := make(map[string]int)
	subtotal := decimal.Zero
	for _, l := range draft.Lines {
		p, ok := s.products[l.ProductID]
		if !ok || !p.Active {
			return nil, fmt.Errorf("product %s: %w", l.ProductID, store.ErrNotFound)
		}
		if _, ok := remaining[p.ID]; !ok {
			remaining[p.ID] = p.StockQuantity
		}
		if l.Quantity > remaining[p.ID] {
			return nil, &store.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   l.Quantity,
				Available:   remaining[p.ID],
			}
		}
		remaining[p.ID] -= l.Quantity
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, pricedLine{product: p, qty: l.Quantity, total: lineTotal})
	}

	tax := subtotal.Mul(draft.TaxRate).Round(2)
	total := subtotal.Add(tax)
	if draft.AmountPaid.LessThan(total) {
		return nil, &store.InsufficientPaymentError{Total: total, Paid: draft.AmountPaid}
	}
	change := draft.AmountPaid.Sub(total)

	day := now.Format("20060102")
	s.receiptSeq[day]++
	receipt := fmt.Sprintf("RC-%s-%04d", day, s.receiptSeq[day])

	sale := &domain.Sale{
		ID:            xid.New("sale"),
		ReceiptNumber: receipt,
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
	for _, l := range lines {
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:          xid.New("item"),
			SaleID:      sale.ID,
			ProductID:   l.product.ID,
			ProductName: l.product.Name,
			UnitPrice:   l.product.Price,
			Quantity:    l.qty,
			TotalPrice:  l.total,
		})
		l.product.StockQuantity -= l.qty
	}

	s.sales[sale.ID] = sale
	s.saleOrder = append(s.saleOrder, sale.ID)
	return cloneSale(sale), nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

// completedIn returns completed sales with created_at in [from, to),
// in creation order. Callers must hold at least a read lock.
func (s *Store) completedIn(from, to time.Time) []*domain.Sale {
	var out []*domain.Sale
	for _, id := range s.saleOrder {
		sale := s.sales[id]
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		out = append(out, sale)
	}
	return out
}

func topProducts(sales []*domain.Sale, limit int) []domain.ProductSalesRow {
	byProduct := make(map[string]*domain.ProductSalesRow)
	for _, sale := range sales {
		for _, item := range sale.Items {
			row, ok := byProduct[item.ProductID]
			if !ok {
				row = &domain.ProductSalesRow{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Revenue:     decimal.Zero,
				}
				byProduct[item.ProductID] = row
			}
			row.TotalSold += int64(item.Quantity)
			row.Revenue = row.Revenue.Add(item.TotalPrice)
		}
	}
	rows := make([]domain.ProductSalesRow, 0, len(byProduct))
	for _, row := range byProduct {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b domain.ProductSalesRow) int {
		switch {
		case a.TotalSold > b.TotalSold:
			return -1
		case a.TotalSold < b.TotalSold:
			return 1
		default:
			return strings.Compare(a.ProductName, b.ProductName)
		}
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (s *Store) GetSalesReport(ctx context.Context, from, to time.Time) (*domain.SalesReport, error) {
	loc := from.Location()

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := s.completedIn(from, to)

	daily := make(map[string]*domain.DailySalesRow)
	methods := make(map[string]*domain.PaymentMethodRow)
	totalSales := decimal.Zero
	for _, sale := range sales {
		date := sale.CreatedAt.In(loc).Format(domain.DateFormat)
		d, ok := daily[date]
		if !ok {
			d = &domain.DailySalesRow{Date: date, Total: decimal.Zero}
			daily[date] = d
		}
		d.Total = d.Total.Add(sale.TotalAmount)
		d.Count++

		m, ok := methods[sale.PaymentMethod]
		if !ok {
			m = &domain.PaymentMethodRow{PaymentMethod: sale.PaymentMethod, Total: decimal.Zero}
			methods[sale.PaymentMethod] = m
		}
		m.Total = m.Total.Add(sale.TotalAmount)
		m.Count++

		totalSales = totalSales.Add(sale.TotalAmount)
	}

	report := &domain.SalesReport{
		DailySales:     make([]domain.DailySalesRow, 0, len(daily)),
		PaymentMethods: make([]domain.PaymentMethodRow, 0, len(methods)),
		TopProducts:    topProducts(sales, 10),
		Summary: domain.ReportSummary{
			TotalSales:              totalSales,
			TotalTransactions:       int64(len(sales)),
			AverageTransactionValue: decimal.Zero,
		},
	}
	if len(sales) > 0 {
		report.Summary.AverageTransactionValue = totalSales.Div(decimal.NewFromInt(int64(len(sales)))).Round(2)
	}
	for _, d := range daily {
		report.DailySales = append(report.DailySales, *d)
	}
	slices.SortFunc(report.DailySales, func(a, b domain.DailySalesRow) int {
		return strings.Compare(a.Date, b.Date)
	})
	for _, m := range methods {
		report.PaymentMethods = append(report.PaymentMethods, *m)
	}
	slices.SortFunc(report.PaymentMethods, func(a, b domain.PaymentMethodRow) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})
	return report, nil
}

func salespersonRows(sales []*domain.Sale) []domain.SalespersonRow {
	byUser := make(map[string]*domain.SalespersonRow)
	for _, sale := range sales {
		row, ok := byUser[sale.CashierID]
		if !ok {
			row = &domain.SalespersonRow{
				CashierID:   sale.CashierID,
				CashierName: sale.CashierName,
				TotalSales:  decimal.Zero,
			}
			byUser[sale.CashierID] = row
		}
		row.TransactionCount++
		row.TotalSales = row.TotalSales.Add(sale.TotalAmount)
	}
	rows := make([]domain.SalespersonRow, 0, len(byUser))
	for _, row := range byUser {
		row.AverageTransactionValue = row.TotalSales.Div(decimal.NewFromInt(row.TransactionCount)).Round(2)
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b domain.SalespersonRow) int {
		switch {
		case a.TotalSales.GreaterThan(b.TotalSales):
			return -1
		case a.TotalSales.LessThan(b.TotalSales):
			return 1
		default:
			return strings.Compare(a.CashierName, b.CashierName)
		}
	})
	return rows
}

func (s *Store) GetSalespersonReport(ctx context.Context, from, to time.Time) ([]domain.SalespersonRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return salespersonRows(s.completedIn(from, to)), nil
}

func (s *Store) CloseDay(ctx context.Context, day time.Time, closedByID, closedByName string) (*domain.DailyClosure, error) {
	date := day.Format(domain.DateFormat)
	from := day
	to := day.AddDate(0, 0, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.closures[date]; ok {
		return nil, store.ErrAlreadyClosed
	}

	sales := s.completedIn(from, to)
	if len(sales) == 0 {
		return nil, store.ErrNoSales
	}

	closure := &domain.DailyClosure{
		ID:           xid.New("closure"),
		ClosureDate:  date,
		ClosedByID:   closedByID,
		ClosedByName: closedByName,
		TotalSales:   decimal.Zero,
		CashSales:    decimal.Zero,
		CardSales:    decimal.Zero,
		QRCodeSales:  decimal.Zero,
		TopProducts:  topProducts(sales, 10),
		CreatedAt:    time.Now(),
	}
	for _, sale := range sales {
		closure.TotalSales = closure.TotalSales.Add(sale.TotalAmount)
		closure.TransactionCount++
		switch sale.PaymentMethod {
		case domain.PaymentCash:
			closure.CashSales = closure.CashSales.Add(sale.TotalAmount)
		case domain.PaymentCard:
			closure.CardSales = closure.CardSales.Add(sale.TotalAmount)
		case domain.PaymentQRCode:
			closure.QRCodeSales = closure.QRCodeSales.Add(sale.TotalAmount)
		}
	}
	for _, row := range salespersonRows(sales) {
		closure.SalesByUser = append(closure.SalesByUser, domain.ClosureUserSummary{
			UserName:         row.CashierName,
			TransactionCount: row.TransactionCount,
			TotalSales:       row.TotalSales,
		})
	}

	s.closures[date] = closure
	return cloneClosure(closure), nil
}

func (s *Store) GetClosureByDate(ctx context.Context, date string) (*domain.DailyClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.closures[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneClosure(c), nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("user %s: %w", u.Username, store.ErrConflict)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := u
	s.users[u.Username] = &cp
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = passwordHash
	return nil
}
