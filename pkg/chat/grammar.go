package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/auth"
	"library_chatbot/pkg/catalog"
	"library_chatbot/pkg/models"
)

// command is one entry of a role's grammar. verbs[0] is the canonical form;
// the others are shorthands.
type command struct {
	verbs []string
	shape argShape
	usage string
	run   func(ctx context.Context, p auth.Principal, a args) Result
}

func (i *Interpreter) adminCommands() []command {
	return []command{
		{
			verbs: []string{"add book", "add"},
			shape: argsBookFields,
			usage: "add book title:<title> author:<author> genre:<genre>",
			run:   i.addBook,
		},
		{
			verbs: []string{"delete book", "delete"},
			shape: argsID,
			usage: "delete book <book_id>",
			run:   i.deleteBook,
		},
		{
			verbs: []string{"list books", "list"},
			shape: argsNone,
			usage: "list books",
			run:   i.listBooks,
		},
		{
			verbs: []string{"sync availability", "sync"},
			shape: argsNone,
			usage: "sync availability",
			run:   i.syncAvailability,
		},
		{
			verbs: []string{"dashboard", "admin dashboard"},
			shape: argsNone,
			usage: "dashboard",
			run: func(context.Context, auth.Principal, args) Result {
				return Redirect(DashboardTarget)
			},
		},
		{
			verbs: []string{"help"},
			shape: argsAny,
			usage: "help",
			run: func(context.Context, auth.Principal, args) Result {
				return Success("Admin Commands:\n" +
					"add book title:<title> author:<author> genre:<genre>\n" +
					"delete book <book_id>\n" +
					"list books\n" +
					"sync availability\n" +
					"dashboard")
			},
		},
	}
}

func (i *Interpreter) studentCommands() []command {
	return []command{
		{
			verbs: []string{"search book", "search"},
			shape: argsText,
			usage: "search book <keyword>",
			run:   i.searchBooks,
		},
		{
			verbs: []string{"borrow"},
			shape: argsID,
			usage: "borrow <book_id>",
			run:   i.borrow,
		},
		{
			verbs: []string{"return"},
			shape: argsID,
			usage: "return <book_id>",
			run:   i.giveBack,
		},
		{
			verbs: []string{"list available books", "list"},
			shape: argsNone,
			usage: "list available books",
			run:   i.listAvailable,
		},
		{
			verbs: []string{"my borrowed books", "my"},
			shape: argsAny,
			usage: "my borrowed books",
			run:   i.myBorrowed,
		},
		{
			verbs: []string{"help"},
			shape: argsAny,
			usage: "help",
			run: func(context.Context, auth.Principal, args) Result {
				return Success("Student Commands:\n" +
					"search book <keyword>\n" +
					"borrow <book_id>\n" +
					"return <book_id>\n" +
					"list available books\n" +
					"my borrowed books")
			},
		},
	}
}

func (i *Interpreter) addBook(ctx context.Context, _ auth.Principal, a args) Result {
	book, err := i.catalog.AddBook(ctx, catalog.BookInput{
		Title:  a.fields["title"],
		Author: a.fields["author"],
		Genre:  a.fields["genre"],
	})
	if err != nil {
		return failureFor(err, nil)
	}
	return Success(fmt.Sprintf("Book '%s' added with ID %d.", book.Title, book.ID))
}

func (i *Interpreter) deleteBook(ctx context.Context, _ auth.Principal, a args) Result {
	_, err := i.catalog.DeleteBook(ctx, a.id)
	if err != nil {
		return failureFor(err, map[apperr.Kind]string{
			apperr.KindNotFound: fmt.Sprintf("Book with ID %d does not exist.", a.id),
			apperr.KindConflict: fmt.Sprintf("Book with ID %d is currently borrowed and cannot be deleted.", a.id),
		})
	}
	return Success(fmt.Sprintf("Book with ID %d deleted.", a.id))
}

func (i *Interpreter) listBooks(ctx context.Context, _ auth.Principal, _ args) Result {
	books, err := i.catalog.SearchBooks(ctx, catalog.Filter{})
	if err != nil {
		return failureFor(err, nil)
	}
	if len(books) == 0 {
		return Success("No books found.")
	}
	return Success("Books:\n" + formatBooks(books, true))
}

func (i *Interpreter) syncAvailability(ctx context.Context, _ auth.Principal, _ args) Result {
	changed, err := i.ledger.Sync(ctx)
	if err != nil {
		return failureFor(err, nil)
	}
	return Success(fmt.Sprintf("Book availability synced with borrow logs (%d corrected).", changed))
}

func (i *Interpreter) searchBooks(ctx context.Context, _ auth.Principal, a args) Result {
	books, err := i.catalog.SearchBooks(ctx, catalog.Filter{Query: a.text})
	if err != nil {
		return failureFor(err, nil)
	}
	if len(books) == 0 {
		return Success("No books found.")
	}
	return Success("Search Results:\n" + formatBooks(books, true))
}

func (i *Interpreter) borrow(ctx context.Context, p auth.Principal, a args) Result {
	loan, err := i.ledger.Borrow(ctx, p.UserID, a.id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnavailable && !errors.Is(err, apperr.ErrLimitReached) {
			return Failure(apperr.KindUnavailable, "Book not available or does not exist.")
		}
		return failureFor(err, nil)
	}
	days := int(loan.DueDate.Sub(loan.IssueDate).Hours() / 24)
	return Success(fmt.Sprintf("Book ID %d borrowed successfully. Due in %d days (%s).",
		a.id, days, loan.DueDate.Format("2006-01-02")))
}

func (i *Interpreter) giveBack(ctx context.Context, p auth.Principal, a args) Result {
	_, err := i.ledger.Return(ctx, p.UserID, a.id)
	if err != nil {
		return failureFor(err, map[apperr.Kind]string{
			apperr.KindNotBorrowed: "You have not borrowed this book or it has already been returned.",
		})
	}
	return Success(fmt.Sprintf("Book ID %d returned successfully.", a.id))
}

func (i *Interpreter) listAvailable(ctx context.Context, _ auth.Principal, _ args) Result {
	books, err := i.catalog.ListAvailableBooks(ctx)
	if err != nil {
		return failureFor(err, nil)
	}
	if len(books) == 0 {
		return Success("No books currently available.")
	}
	return Success("Available Books:\n" + formatBooks(books, false))
}

func (i *Interpreter) myBorrowed(ctx context.Context, p auth.Principal, _ args) Result {
	loans, err := i.ledger.ListBorrowed(ctx, p.UserID)
	if err != nil {
		return failureFor(err, nil)
	}
	if len(loans) == 0 {
		return Success("You have no borrowed books.")
	}

	var b strings.Builder
	b.WriteString("Your Borrowed Books:\n")
	for _, l := range loans {
		returned := "no"
		if l.Returned {
			returned = "yes"
		}
		title := l.Book.Title
		if title == "" {
			title = fmt.Sprintf("book %d (removed)", l.BookID)
		}
		fmt.Fprintf(&b, "'%s' | Issued: %s, Due: %s, Returned: %s\n",
			title, l.IssueDate.Format("2006-01-02"), l.DueDate.Format("2006-01-02"), returned)
	}
	return Success(strings.TrimSuffix(b.String(), "\n"))
}

func formatBooks(books []models.Book, withStatus bool) string {
	var b strings.Builder
	for _, book := range books {
		fmt.Fprintf(&b, "ID %d: '%s' by %s (%s)", book.ID, book.Title, book.Author, book.Genre)
		if withStatus {
			status := "available"
			if !book.Available {
				status = "borrowed"
			}
			fmt.Fprintf(&b, " - %s", status)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}
