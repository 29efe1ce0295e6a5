// Package service holds the business rules between the HTTP layer and
// the store: input validation, role checks, the tax policy, and report
// caching.
package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const maxNotesLength = 1000

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	logger    *zap.Logger
	taxRate   decimal.Decimal
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, logger *zap.Logger, taxRatePercent float64, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		logger:    logger,
		taxRate:   decimal.NewFromFloat(taxRatePercent).Div(decimal.NewFromInt(100)),
		reportTTL: reportTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query required: %w", store.ErrValidation)
	}
	return s.repo.SearchProducts(ctx, query, 10)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.CategoryID = strings.TrimSpace(req.CategoryID)

	if req.Name == "" || req.Barcode == "" {
		return domain.Product{}, fmt.Errorf("name and barcode required: %w", store.ErrValidation)
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return domain.Product{}, fmt.Errorf("price must be positive: %w", store.ErrValidation)
	}
	if req.StockQuantity < 0 {
		return domain.Product{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		Barcode:       req.Barcode,
		Price:         req.Price.Round(2),
		StockQuantity: req.StockQuantity,
		Active:        true,
		CategoryID:    req.CategoryID,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("barcode", created.Barcode))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("product id required: %w", store.ErrValidation)
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("name must not be empty: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		barcode := strings.TrimSpace(*req.Barcode)
		if barcode == "" {
			return domain.Product{}, fmt.Errorf("barcode must not be empty: %w", store.ErrValidation)
		}
		updated.Barcode = barcode
	}
	if req.Price != nil {
		if req.Price.LessThanOrEqual(decimal.Zero) {
			return domain.Product{}, fmt.Errorf("price must be positive: %w", store.ErrValidation)
		}
		updated.Price = req.Price.Round(2)
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return domain.Product{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
		}
		updated.StockQuantity = *req.StockQuantity
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id string) (domain.Product, error) {
	inactive := false
	return s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{Active: &inactive})
}

func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, store.ErrUnauthorized
	}

	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("at least one item required: %w", store.ErrValidation)
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return domain.Sale{}, fmt.Errorf("item product id required: %w", store.ErrValidation)
		}
		if line.Quantity < 1 {
			return domain.Sale{}, fmt.Errorf("item quantity must be at least 1: %w", store.ErrValidation)
		}
	}
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRCode:
	default:
		return domain.Sale{}, fmt.Errorf("unknown payment method %q: %w", req.PaymentMethod, store.ErrValidation)
	}
	if req.AmountPaid.IsNegative() {
		return domain.Sale{}, fmt.Errorf("amount paid must not be negative: %w", store.ErrValidation)
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.Sale{}, fmt.Errorf("invalid customer email: %w", store.ErrValidation)
		}
	}
	notes := strings.TrimSpace(req.Notes)
	if len(notes) > maxNotesLength {
		return domain.Sale{}, fmt.Errorf("notes longer than %d characters: %w", maxNotesLength, store.ErrValidation)
	}

	sale, err := s.repo.CreateSale(ctx, domain.SaleDraft{
		Lines:         req.Items,
		PaymentMethod: req.PaymentMethod,
		AmountPaid:    req.AmountPaid.Round(2),
		CustomerEmail: email,
		Notes:         notes,
		CashierID:     actor.Username,
		CashierName:   actor.Username,
		TaxRate:       s.taxRate,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("sale completed",
		zap.String("sale_id", sale.ID),
		zap.String("receipt_number", sale.ReceiptNumber),
		zap.String("cashier", actor.Username),
		zap.String("total", sale.TotalAmount.StringFixed(2)))
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, fmt.Errorf("sale id required: %w", store.ErrValidation)
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) GetReport(ctx context.Context, startDate, endDate string) (domain.SalesReport, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.SalesReport{}, err
	}

	from, to, err := parseDateRange(startDate, endDate)
	if err != nil {
		return domain.SalesReport{}, err
	}

	cacheKey := fmt.Sprintf("report:sales:%s:%s", startDate, endDate)
	if cached, ok, err := s.reports.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("report cache read failed", zap.Error(err))
	}

	report, err := s.repo.GetSalesReport(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	report.StartDate = startDate
	report.EndDate = endDate

	if err := s.reports.Set(ctx, cacheKey, report, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.Error(err))
	}

	return *report, nil
}

func (s *Service) GetSalespersonReport(ctx context.Context, startDate, endDate string) (domain.SalespersonReport, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.SalespersonReport{}, err
	}

	from, to, err := parseDateRange(startDate, endDate)
	if err != nil {
		return domain.SalespersonReport{}, err
	}

	rows, err := s.repo.GetSalespersonReport(ctx, from, to)
	if err != nil {
		return domain.SalespersonReport{}, err
	}

	return domain.SalespersonReport{
		StartDate:   startDate,
		EndDate:     endDate,
		SalesByUser: rows,
	}, nil
}

func (s *Service) CloseDay(ctx context.Context) (domain.DailyClosure, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.DailyClosure{}, store.ErrUnauthorized
	}
	if actor.Role != domain.RoleAdmin {
		return domain.DailyClosure{}, store.ErrForbidden
	}

	today := dayStart(time.Now())
	closure, err := s.repo.CloseDay(ctx, today, actor.Username, actor.Username)
	if err != nil {
		return domain.DailyClosure{}, err
	}

	s.logger.Info("day closed",
		zap.String("closure_date", closure.ClosureDate),
		zap.String("closed_by", actor.Username),
		zap.Int64("transactions", closure.TransactionCount),
		zap.String("total", closure.TotalSales.StringFixed(2)))
	return *closure, nil
}

func (s *Service) GetClosure(ctx context.Context, date string) (domain.DailyClosure, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.DailyClosure{}, err
	}

	if _, err := time.ParseInLocation(domain.DateFormat, date, time.Local); err != nil {
		return domain.DailyClosure{}, fmt.Errorf("invalid date %q: %w", date, store.ErrValidation)
	}

	closure, err := s.repo.GetClosureByDate(ctx, date)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	return *closure, nil
}

func requireRole(ctx context.Context, role string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return store.ErrUnauthorized
	}
	if actor.Role != role {
		return store.ErrForbidden
	}
	return nil
}

// parseDateRange turns inclusive calendar dates into a half-open
// [from, to) instant window in server-local time.
func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(domain.DateFormat, startDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startDate, store.ErrValidation)
	}
	end, err := time.ParseInLocation(domain.DateFormat, endDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endDate, store.ErrValidation)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date before start date: %w", store.ErrValidation)
	}
	return start, end.AddDate(0, 0, 1), nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
