package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

type User struct {
	ID           uint    `gorm:"primaryKey"`
	Username     string  `gorm:"size:80;not null;uniqueIndex"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Role         Role    `gorm:"size:20;not null;index"`
	Email        *string `gorm:"uniqueIndex"`
	Phone        string
	Address      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Category struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:80;not null;uniqueIndex"`
	Description string
	CreatedAt   time.Time
}

// Book.Available caches whether the book has no open loan. ledger.Sync
// recomputes it from the loans table.
type Book struct {
	ID         uint    `gorm:"primaryKey"`
	Title      string  `gorm:"not null"`
	Author     string  `gorm:"not null"`
	Genre      string
	ISBN       *string `gorm:"uniqueIndex"`
	CategoryID *uint   `gorm:"index"`
	CoverImage string
	Available  bool `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Category *Category `gorm:"foreignKey:CategoryID"`
}

// Loan is a borrow_log row.
type Loan struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"not null;index:idx_loan_user_book"`
	BookID     uint      `gorm:"not null;index:idx_loan_user_book;index"`
	IssueDate  time.Time `gorm:"not null"`
	DueDate    time.Time `gorm:"not null;index"`
	Returned   bool      `gorm:"not null;default:false;index"`
	ReturnDate *time.Time

	Book Book `gorm:"foreignKey:BookID"`
	User User `gorm:"foreignKey:UserID"`
}

func (Loan) TableName() string { return "borrow_log" }

type HistoryEntry struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"not null;index"`
	BookID     uint      `gorm:"not null;index"`
	BorrowDate time.Time `gorm:"not null"`
	ReturnDate *time.Time

	Book Book `gorm:"foreignKey:BookID"`
}

func (HistoryEntry) TableName() string { return "reading_history" }

// Fine.LoanID is set only for fines assessed from an overdue loan; fines
// added by hand by an administrator carry no loan.
type Fine struct {
	ID        uint            `gorm:"primaryKey"`
	UserID    uint            `gorm:"not null;index"`
	LoanID    *uint           `gorm:"uniqueIndex"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Reason    string          `gorm:"not null"`
	Paid      bool            `gorm:"not null;default:false"`
	CreatedAt time.Time
	PaidAt    *time.Time

	User User `gorm:"foreignKey:UserID"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Category{}, &Book{}, &Loan{}, &HistoryEntry{}, &Fine{},
	}
}
