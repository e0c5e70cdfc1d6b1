// Package catalog manages book records and their categories. Availability is
// owned by the ledger and never edited here.
package catalog

import (
	"context"
	"errors"
	"log"
	"strings"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/ledger"
	"library_chatbot/pkg/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	AvailabilityAny       = ""
	AvailabilityAvailable = "available"
	AvailabilityBorrowed  = "borrowed"
)

type Catalog struct {
	store *database.Store
	locks *ledger.Locks
}

// New builds a catalog sharing locks with the ledger, so that deleting a book
// cannot interleave with a borrow of the same book.
func New(store *database.Store, locks *ledger.Locks) *Catalog {
	if locks == nil {
		locks = ledger.NewLocks()
	}
	return &Catalog{store: store, locks: locks}
}

type BookInput struct {
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Genre      string  `json:"genre"`
	ISBN       *string `json:"isbn"`
	CategoryID *uint   `json:"categoryId"`
	CoverImage string  `json:"coverImage"`
}

func (in BookInput) normalize() (BookInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.CoverImage = strings.TrimSpace(in.CoverImage)
	if in.ISBN != nil {
		isbn := strings.TrimSpace(*in.ISBN)
		if isbn == "" {
			in.ISBN = nil
		} else {
			in.ISBN = &isbn
		}
	}
	if in.Title == "" {
		return in, apperr.Invalid("title is required")
	}
	if in.Author == "" {
		return in, apperr.Invalid("author is required")
	}
	return in, nil
}

type Filter struct {
	Query        string
	CategoryID   *uint
	Availability string
}

// AddBook stores a new book. New books are always available.
func (c *Catalog) AddBook(ctx context.Context, in BookInput) (*models.Book, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	book := models.Book{
		Title:      in.Title,
		Author:     in.Author,
		Genre:      in.Genre,
		ISBN:       in.ISBN,
		CategoryID: in.CategoryID,
		CoverImage: in.CoverImage,
		Available:  true,
	}
	err = c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := checkReferences(tx, 0, in); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&book).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Added book %d: %q by %s", book.ID, book.Title, book.Author)
	return &book, nil
}

func (c *Catalog) UpdateBook(ctx context.Context, id uint, in BookInput) (*models.Book, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	var book models.Book
	err = c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("book")
			}
			return err
		}
		if err := checkReferences(tx, id, in); err != nil {
			return err
		}

		err := tx.Model(&models.Book{}).Where("id = ?", id).Updates(map[string]interface{}{
			"title":       in.Title,
			"author":      in.Author,
			"genre":       in.Genre,
			"isbn":        in.ISBN,
			"category_id": in.CategoryID,
			"cover_image": in.CoverImage,
		}).Error
		if err != nil {
			return err
		}
		return tx.First(&book, id).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Updated book %d", id)
	return &book, nil
}

// DeleteBook removes a book that nobody currently holds.
func (c *Catalog) DeleteBook(ctx context.Context, id uint) (*models.Book, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	var book models.Book
	err := c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("book")
			}
			return err
		}

		var open int64
		err := tx.Model(&models.Loan{}).Where("book_id = ? AND returned = ?", id, false).Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return apperr.Conflict("book %d is currently borrowed", id)
		}
		return tx.Delete(&models.Book{}, id).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Deleted book %d: %q", id, book.Title)
	return &book, nil
}

func (c *Catalog) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := c.store.Read(ctx, func(db *gorm.DB) error {
		err := db.Preload("Category").First(&book, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("book")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// SearchBooks matches f.Query case-insensitively against title, author and
// ISBN. Results are ordered by title.
func (c *Catalog) SearchBooks(ctx context.Context, f Filter) ([]models.Book, error) {
	switch f.Availability {
	case AvailabilityAny, AvailabilityAvailable, AvailabilityBorrowed:
	default:
		return nil, apperr.Invalid("availability must be %q or %q", AvailabilityAvailable, AvailabilityBorrowed)
	}

	var books []models.Book
	err := c.store.Read(ctx, func(db *gorm.DB) error {
		query := db.Preload("Category")
		if q := strings.TrimSpace(f.Query); q != "" {
			pattern := "%" + strings.ToLower(q) + "%"
			query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(isbn) LIKE ?",
				pattern, pattern, pattern)
		}
		if f.CategoryID != nil {
			query = query.Where("category_id = ?", *f.CategoryID)
		}
		switch f.Availability {
		case AvailabilityAvailable:
			query = query.Where("available = ?", true)
		case AvailabilityBorrowed:
			query = query.Where("available = ?", false)
		}
		return query.Order("title, id").Find(&books).Error
	})
	return books, err
}

func (c *Catalog) ListAvailableBooks(ctx context.Context) ([]models.Book, error) {
	return c.SearchBooks(ctx, Filter{Availability: AvailabilityAvailable})
}

// checkReferences validates the ISBN uniqueness and category of in. selfID
// is the book being updated, 0 on insert.
func checkReferences(tx *gorm.DB, selfID uint, in BookInput) error {
	if in.ISBN != nil {
		var n int64
		err := tx.Model(&models.Book{}).Where("isbn = ? AND id <> ?", *in.ISBN, selfID).Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("a book with ISBN %s already exists", *in.ISBN)
		}
	}
	if in.CategoryID != nil {
		var n int64
		if err := tx.Model(&models.Category{}).Where("id = ?", *in.CategoryID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("category")
		}
	}
	return nil
}
