package catalog

import (
	"context"
	"testing"
	"time"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCatalog(t *testing.T) (*Catalog, *gorm.DB) {
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to connect test database: %v", err)
	}
	return New(database.NewStore(db, nil), nil), db
}

func strPtr(s string) *string { return &s }

func TestAddBook(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	book, err := c.AddBook(ctx, BookInput{Title: "  Thermodynamics ", Author: "Cengel", Genre: "Engineering", ISBN: strPtr("978-0073398174")})
	require.NoError(t, err)
	assert.NotZero(t, book.ID)
	assert.Equal(t, "Thermodynamics", book.Title)
	assert.True(t, book.Available)

	fetched, err := c.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Available)
	require.NotNil(t, fetched.ISBN)
	assert.Equal(t, "978-0073398174", *fetched.ISBN)
}

func TestAddBookValidation(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()
	missingCategory := uint(77)

	_, err := c.AddBook(ctx, BookInput{Title: "Taken", Author: "A", ISBN: strPtr("111")})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input BookInput
		kind  apperr.Kind
	}{
		{name: "missing title", input: BookInput{Author: "A"}, kind: apperr.KindInvalidInput},
		{name: "missing author", input: BookInput{Title: "T"}, kind: apperr.KindInvalidInput},
		{name: "duplicate isbn", input: BookInput{Title: "T", Author: "A", ISBN: strPtr("111")}, kind: apperr.KindConflict},
		{name: "unknown category", input: BookInput{Title: "T", Author: "A", CategoryID: &missingCategory}, kind: apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddBook(ctx, tt.input)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestBlankISBNsDoNotCollide(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	_, err := c.AddBook(ctx, BookInput{Title: "One", Author: "A", ISBN: strPtr(" ")})
	require.NoError(t, err)
	_, err = c.AddBook(ctx, BookInput{Title: "Two", Author: "B"})
	require.NoError(t, err)
}

func TestUpdateBook(t *testing.T) {
	c, db := setupCatalog(t)
	ctx := context.Background()

	book, err := c.AddBook(ctx, BookInput{Title: "Draft", Author: "A", ISBN: strPtr("222")})
	require.NoError(t, err)
	other, err := c.AddBook(ctx, BookInput{Title: "Other", Author: "B", ISBN: strPtr("333")})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Book{}).Where("id = ?", book.ID).Update("available", false).Error)

	updated, err := c.UpdateBook(ctx, book.ID, BookInput{Title: "Final", Author: "A", Genre: "Drama", ISBN: strPtr("222")})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, "Drama", updated.Genre)
	assert.False(t, updated.Available, "update must not touch availability")

	_, err = c.UpdateBook(ctx, other.ID, BookInput{Title: "Other", Author: "B", ISBN: strPtr("222")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = c.UpdateBook(ctx, 999, BookInput{Title: "X", Author: "Y"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteBook(t *testing.T) {
	c, db := setupCatalog(t)
	ctx := context.Background()

	free, err := c.AddBook(ctx, BookInput{Title: "Free", Author: "A"})
	require.NoError(t, err)
	lent, err := c.AddBook(ctx, BookInput{Title: "Lent", Author: "B"})
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, db.Omit("Book", "User").Create(&models.Loan{UserID: 1, BookID: lent.ID, IssueDate: now, DueDate: now.AddDate(0, 0, 14)}).Error)

	deleted, err := c.DeleteBook(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, "Free", deleted.Title)
	_, err = c.GetBook(ctx, free.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = c.DeleteBook(ctx, lent.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = c.GetBook(ctx, lent.ID)
	assert.NoError(t, err)

	_, err = c.DeleteBook(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearchBooks(t *testing.T) {
	c, db := setupCatalog(t)
	ctx := context.Background()

	science, err := c.AddCategory(ctx, "Science", "")
	require.NoError(t, err)
	_, err = c.AddBook(ctx, BookInput{Title: "Quantum Physics", Author: "Griffiths", CategoryID: &science.ID})
	require.NoError(t, err)
	lent, err := c.AddBook(ctx, BookInput{Title: "Applied Physics", Author: "Halliday", ISBN: strPtr("978-PHY")})
	require.NoError(t, err)
	_, err = c.AddBook(ctx, BookInput{Title: "Poems", Author: "Keats"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Book{}).Where("id = ?", lent.ID).Update("available", false).Error)

	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{name: "everything ordered by title", filter: Filter{}, expected: []string{"Applied Physics", "Poems", "Quantum Physics"}},
		{name: "keyword is case insensitive", filter: Filter{Query: "PHYSICS"}, expected: []string{"Applied Physics", "Quantum Physics"}},
		{name: "keyword matches author", filter: Filter{Query: "keats"}, expected: []string{"Poems"}},
		{name: "keyword matches isbn", filter: Filter{Query: "phy"}, expected: []string{"Applied Physics", "Quantum Physics"}},
		{name: "category", filter: Filter{CategoryID: &science.ID}, expected: []string{"Quantum Physics"}},
		{name: "available only", filter: Filter{Query: "physics", Availability: AvailabilityAvailable}, expected: []string{"Quantum Physics"}},
		{name: "borrowed only", filter: Filter{Availability: AvailabilityBorrowed}, expected: []string{"Applied Physics"}},
		{name: "no match", filter: Filter{Query: "chemistry"}, expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := c.SearchBooks(ctx, tt.filter)
			require.NoError(t, err)
			titles := make([]string, 0, len(books))
			for _, b := range books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.expected, titles)
		})
	}

	_, err = c.SearchBooks(ctx, Filter{Availability: "lost"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	available, err := c.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 2)
}

func TestCategories(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	fiction, err := c.AddCategory(ctx, "Fiction", "Novels")
	require.NoError(t, err)
	_, err = c.AddCategory(ctx, "Art", "")
	require.NoError(t, err)

	_, err = c.AddCategory(ctx, "Fiction", "again")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = c.AddCategory(ctx, " ", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	renamed, err := c.UpdateCategory(ctx, fiction.ID, "Literature", "Novels and stories")
	require.NoError(t, err)
	assert.Equal(t, "Literature", renamed.Name)
	_, err = c.UpdateCategory(ctx, fiction.ID, "Art", "")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	list, err := c.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Art", list[0].Name)
	assert.Equal(t, "Literature", list[1].Name)

	_, err = c.AddBook(ctx, BookInput{Title: "Emma", Author: "Austen", CategoryID: &fiction.ID})
	require.NoError(t, err)
	err = c.DeleteCategory(ctx, fiction.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = c.DeleteCategory(ctx, list[0].ID)
	require.NoError(t, err)
	err = c.DeleteCategory(ctx, list[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
