// Package ledger keeps the borrow log, the reading history and the books'
// availability flag consistent with each other.
package ledger

import (
	"context"
	"errors"
	"log"
	"time"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/config"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	store *database.Store
	locks *Locks
	cfg   config.LendingConfig
	now   func() time.Time
}

func New(store *database.Store, locks *Locks, cfg config.LendingConfig) *Ledger {
	if locks == nil {
		locks = NewLocks()
	}
	return &Ledger{store: store, locks: locks, cfg: cfg, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Today() time.Time {
	return DateOf(l.now())
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Borrow lends bookID to userID for the configured loan period. The loan,
// its history entry and the availability flag are written in one
// transaction.
func (l *Ledger) Borrow(ctx context.Context, userID, bookID uint) (*models.Loan, error) {
	unlock := l.locks.Lock(bookID)
	defer unlock()

	issue := l.Today()
	loan := models.Loan{
		UserID:    userID,
		BookID:    bookID,
		IssueDate: issue,
		DueDate:   issue.AddDate(0, 0, l.cfg.LoanPeriodDays),
	}

	err := l.store.Transaction(ctx, func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrUnavailable
			}
			return err
		}
		if !book.Available {
			return apperr.ErrUnavailable
		}

		open, err := countOpen(tx, "book_id = ?", bookID)
		if err != nil {
			return err
		}
		if open > 0 {
			log.Printf("Book %d flagged available but has %d open loans", bookID, open)
			return apperr.ErrUnavailable
		}

		if l.cfg.MaxBooksPerUser > 0 {
			held, err := countOpen(tx, "user_id = ?", userID)
			if err != nil {
				return err
			}
			if held >= int64(l.cfg.MaxBooksPerUser) {
				return apperr.ErrLimitReached
			}
		}

		if err := tx.Omit(clause.Associations).Create(&loan).Error; err != nil {
			return err
		}
		entry := models.HistoryEntry{UserID: userID, BookID: bookID, BorrowDate: issue}
		if err := tx.Omit(clause.Associations).Create(&entry).Error; err != nil {
			return err
		}
		return setAvailable(tx, bookID, false)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("User %d borrowed book %d, due %s", userID, bookID, loan.DueDate.Format("2006-01-02"))
	return &loan, nil
}

// Return closes the user's open loan on bookID. Should several open loans
// exist for the pair, the earliest one is closed.
func (l *Ledger) Return(ctx context.Context, userID, bookID uint) (*models.Loan, error) {
	unlock := l.locks.Lock(bookID)
	defer unlock()

	today := l.Today()
	var loan models.Loan

	err := l.store.Transaction(ctx, func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND book_id = ? AND returned = ?", userID, bookID, false).
			Order("issue_date, id").
			First(&loan).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrNotBorrowed
			}
			return err
		}

		err = tx.Model(&models.Loan{}).Where("id = ?", loan.ID).
			Updates(map[string]interface{}{"returned": true, "return_date": today}).Error
		if err != nil {
			return err
		}
		loan.Returned = true
		loan.ReturnDate = &today

		var entry models.HistoryEntry
		err = tx.Where("user_id = ? AND book_id = ? AND return_date IS NULL", userID, bookID).
			Order("borrow_date, id").
			First(&entry).Error
		switch {
		case err == nil:
			if err := tx.Model(&models.HistoryEntry{}).Where("id = ?", entry.ID).
				Update("return_date", today).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("No open reading history entry for user %d book %d", userID, bookID)
		default:
			return err
		}

		open, err := countOpen(tx, "book_id = ?", bookID)
		if err != nil {
			return err
		}
		return setAvailable(tx, bookID, open == 0)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("User %d returned book %d", userID, bookID)
	return &loan, nil
}

// Sync recomputes every book's availability from the open loans and
// reports how many flags were wrong.
func (l *Ledger) Sync(ctx context.Context) (int, error) {
	unlock := l.locks.LockAll()
	defer unlock()

	changed := 0
	err := l.store.Transaction(ctx, func(tx *gorm.DB) error {
		var books []models.Book
		if err := tx.Select("id", "available").Find(&books).Error; err != nil {
			return err
		}

		var rows []struct {
			BookID    uint
			OpenCount int64
		}
		err := tx.Model(&models.Loan{}).
			Select("book_id, COUNT(*) AS open_count").
			Where("returned = ?", false).
			Group("book_id").
			Scan(&rows).Error
		if err != nil {
			return err
		}
		openByBook := make(map[uint]int64, len(rows))
		for _, r := range rows {
			openByBook[r.BookID] = r.OpenCount
		}

		changed = 0
		for _, b := range books {
			want := openByBook[b.ID] == 0
			if b.Available == want {
				continue
			}
			if err := setAvailable(tx, b.ID, want); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("Synced book availability with borrow log, %d corrected", changed)
	return changed, nil
}

// ListBorrowed returns every loan of the user, newest first.
func (l *Ledger) ListBorrowed(ctx context.Context, userID uint) ([]models.Loan, error) {
	var loans []models.Loan
	err := l.store.Read(ctx, func(db *gorm.DB) error {
		return db.Preload("Book").
			Where("user_id = ?", userID).
			Order("issue_date DESC, id DESC").
			Find(&loans).Error
	})
	return loans, err
}

func (l *Ledger) ListOpenLoans(ctx context.Context) ([]models.Loan, error) {
	var loans []models.Loan
	err := l.store.Read(ctx, func(db *gorm.DB) error {
		return db.Preload("Book").Preload("User").
			Where("returned = ?", false).
			Order("due_date, id").
			Find(&loans).Error
	})
	return loans, err
}

// BorrowLog is the full borrow history across all users.
func (l *Ledger) BorrowLog(ctx context.Context) ([]models.Loan, error) {
	var loans []models.Loan
	err := l.store.Read(ctx, func(db *gorm.DB) error {
		return db.Preload("Book").Preload("User").
			Order("issue_date DESC, id DESC").
			Find(&loans).Error
	})
	return loans, err
}

func (l *Ledger) History(ctx context.Context, userID uint) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := l.store.Read(ctx, func(db *gorm.DB) error {
		return db.Preload("Book").
			Where("user_id = ?", userID).
			Order("borrow_date DESC, id DESC").
			Find(&entries).Error
	})
	return entries, err
}

type OverdueLoan struct {
	Loan          models.Loan
	Days          int
	SuggestedFine decimal.Decimal
}

// OverdueDays is max(0, today - due) in whole days.
func OverdueDays(due, today time.Time) int {
	days := int(DateOf(today).Sub(DateOf(due)) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

func (l *Ledger) SuggestedFine(days int) decimal.Decimal {
	return l.cfg.FinePerDay.Mul(decimal.NewFromInt(int64(days)))
}

// Overdue lists unreturned loans past their due date, oldest due first,
// with the fine they would incur today. Nothing is persisted.
func (l *Ledger) Overdue(ctx context.Context) ([]OverdueLoan, error) {
	today := l.Today()
	var loans []models.Loan
	err := l.store.Read(ctx, func(db *gorm.DB) error {
		return db.Preload("Book").Preload("User").
			Where("returned = ? AND due_date < ?", false, today).
			Order("due_date, id").
			Find(&loans).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]OverdueLoan, 0, len(loans))
	for _, loan := range loans {
		days := OverdueDays(loan.DueDate, today)
		if days == 0 {
			continue
		}
		out = append(out, OverdueLoan{Loan: loan, Days: days, SuggestedFine: l.SuggestedFine(days)})
	}
	return out, nil
}

type Stats struct {
	TotalBooks     int64 `json:"totalBooks"`
	AvailableBooks int64 `json:"availableBooks"`
	Students       int64 `json:"students"`
	CurrentBorrows int64 `json:"currentBorrows"`
	OverdueBorrows int64 `json:"overdueBorrows"`
	TotalBorrows   int64 `json:"totalBorrows"`
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	today := l.Today()
	var s Stats
	err := l.store.Read(ctx, func(db *gorm.DB) error {
		counts := []struct {
			dst   *int64
			query *gorm.DB
		}{
			{&s.TotalBooks, db.Model(&models.Book{})},
			{&s.AvailableBooks, db.Model(&models.Book{}).Where("available = ?", true)},
			{&s.Students, db.Model(&models.User{}).Where("role = ?", models.RoleStudent)},
			{&s.CurrentBorrows, db.Model(&models.Loan{}).Where("returned = ?", false)},
			{&s.OverdueBorrows, db.Model(&models.Loan{}).Where("returned = ? AND due_date < ?", false, today)},
			{&s.TotalBorrows, db.Model(&models.Loan{})},
		}
		for _, c := range counts {
			if err := c.query.Count(c.dst).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return s, err
}

func countOpen(tx *gorm.DB, cond string, id uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Loan{}).Where("returned = ?", false).Where(cond, id).Count(&n).Error
	return n, err
}

func setAvailable(tx *gorm.DB, bookID uint, available bool) error {
	return tx.Model(&models.Book{}).Where("id = ?", bookID).Update("available", available).Error
}
