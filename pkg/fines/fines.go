// Package fines keeps the monetary penalties charged to users.
package fines

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/ledger"
	"library_chatbot/pkg/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OverdueSource lists the loans that are currently past due.
type OverdueSource interface {
	Overdue(ctx context.Context) ([]ledger.OverdueLoan, error)
}

type Service struct {
	store   *database.Store
	overdue OverdueSource
	now     func() time.Time
}

func NewService(store *database.Store, overdue OverdueSource) *Service {
	return &Service{store: store, overdue: overdue, now: time.Now}
}

// Add charges a manual fine to userID. Manual fines are not linked to a loan.
func (s *Service) Add(ctx context.Context, userID uint, amount decimal.Decimal, reason string) (*models.Fine, error) {
	reason = strings.TrimSpace(reason)
	if !amount.IsPositive() {
		return nil, apperr.Invalid("amount must be greater than 0")
	}
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}

	fine := models.Fine{UserID: userID, Amount: amount.Round(2), Reason: reason}
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("user")
		}
		return tx.Omit(clause.Associations).Create(&fine).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Fine %d of %s charged to user %d", fine.ID, fine.Amount.StringFixed(2), userID)
	return &fine, nil
}

func (s *Service) MarkPaid(ctx context.Context, id uint) (*models.Fine, error) {
	var fine models.Fine
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := findFine(tx, id, &fine); err != nil {
			return err
		}
		if fine.Paid {
			return apperr.Conflict("fine %d is already paid", id)
		}
		paidAt := s.now().UTC()
		fine.Paid = true
		fine.PaidAt = &paidAt
		return tx.Model(&models.Fine{}).Where("id = ?", id).
			Updates(map[string]interface{}{"paid": true, "paid_at": paidAt}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Fine %d marked as paid", id)
	return &fine, nil
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.store.Transaction(ctx, func(tx *gorm.DB) error {
		var fine models.Fine
		if err := findFine(tx, id, &fine); err != nil {
			return err
		}
		return tx.Delete(&models.Fine{}, id).Error
	})
}

func (s *Service) ListByUser(ctx context.Context, userID uint) ([]models.Fine, error) {
	var fines []models.Fine
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&fines).Error
	})
	return fines, err
}

// List returns every fine with its user, newest first.
func (s *Service) List(ctx context.Context) ([]models.Fine, error) {
	var fines []models.Fine
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		return db.Preload("User").Order("created_at DESC, id DESC").Find(&fines).Error
	})
	return fines, err
}

type Stats struct {
	Count       int64           `json:"totalFines"`
	TotalUnpaid decimal.Decimal `json:"totalUnpaid"`
	TotalPaid   decimal.Decimal `json:"totalPaid"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var fines []models.Fine
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		return db.Select("amount", "paid").Find(&fines).Error
	})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Count: int64(len(fines)), TotalUnpaid: decimal.Zero, TotalPaid: decimal.Zero}
	for _, f := range fines {
		if f.Paid {
			stats.TotalPaid = stats.TotalPaid.Add(f.Amount)
		} else {
			stats.TotalUnpaid = stats.TotalUnpaid.Add(f.Amount)
		}
	}
	return stats, nil
}

// AssessOverdue charges the suggested fine for every overdue loan that has
// not been fined yet and returns the fines it created.
func (s *Service) AssessOverdue(ctx context.Context) ([]models.Fine, error) {
	overdue, err := s.overdue.Overdue(ctx)
	if err != nil {
		return nil, err
	}

	var created []models.Fine
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		created = created[:0]
		for _, o := range overdue {
			loanID := o.Loan.ID
			var n int64
			if err := tx.Model(&models.Fine{}).Where("loan_id = ?", loanID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}

			fine := models.Fine{
				UserID: o.Loan.UserID,
				LoanID: &loanID,
				Amount: o.SuggestedFine.Round(2),
				Reason: overdueReason(o),
			}
			if err := tx.Omit(clause.Associations).Create(&fine).Error; err != nil {
				return err
			}
			created = append(created, fine)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Assessed %d overdue fines", len(created))
	return created, nil
}

func overdueReason(o ledger.OverdueLoan) string {
	title := o.Loan.Book.Title
	if title == "" {
		title = fmt.Sprintf("book %d", o.Loan.BookID)
	}
	return fmt.Sprintf("Overdue: '%s' is %d days past due", title, o.Days)
}

func findFine(tx *gorm.DB, id uint, fine *models.Fine) error {
	err := tx.First(fine, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("fine")
	}
	return err
}
