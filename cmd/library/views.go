package main

import (
	"time"

	"library_chatbot/pkg/fines"
	"library_chatbot/pkg/ledger"
	"library_chatbot/pkg/models"
	"library_chatbot/pkg/users"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func bookView(b models.Book) gin.H {
	view := gin.H{
		"id":         b.ID,
		"title":      b.Title,
		"author":     b.Author,
		"genre":      b.Genre,
		"isbn":       b.ISBN,
		"categoryId": b.CategoryID,
		"coverImage": b.CoverImage,
		"available":  b.Available,
	}
	if b.Category != nil {
		view["category"] = b.Category.Name
	}
	return view
}

func bookViews(books []models.Book) []gin.H {
	items := make([]gin.H, len(books))
	for i, b := range books {
		items[i] = bookView(b)
	}
	return items
}

func loanView(l models.Loan) gin.H {
	view := gin.H{
		"id":         l.ID,
		"userId":     l.UserID,
		"bookId":     l.BookID,
		"issueDate":  l.IssueDate.Format(dateLayout),
		"dueDate":    l.DueDate.Format(dateLayout),
		"returned":   l.Returned,
		"returnDate": formatDate(l.ReturnDate),
	}
	if l.Book.ID != 0 {
		view["title"] = l.Book.Title
		view["author"] = l.Book.Author
	}
	if l.User.ID != 0 {
		view["username"] = l.User.Username
	}
	return view
}

func loanViews(loans []models.Loan) []gin.H {
	items := make([]gin.H, len(loans))
	for i, l := range loans {
		items[i] = loanView(l)
	}
	return items
}

func historyViews(entries []models.HistoryEntry) []gin.H {
	items := make([]gin.H, len(entries))
	for i, e := range entries {
		items[i] = gin.H{
			"id":         e.ID,
			"bookId":     e.BookID,
			"title":      e.Book.Title,
			"author":     e.Book.Author,
			"borrowDate": e.BorrowDate.Format(dateLayout),
			"returnDate": formatDate(e.ReturnDate),
		}
	}
	return items
}

func overdueViews(overdue []ledger.OverdueLoan) []gin.H {
	items := make([]gin.H, len(overdue))
	for i, o := range overdue {
		view := loanView(o.Loan)
		view["overdueDays"] = o.Days
		view["fine"] = o.SuggestedFine.StringFixed(2)
		items[i] = view
	}
	return items
}

func fineView(f models.Fine) gin.H {
	status := "Unpaid"
	if f.Paid {
		status = "Paid"
	}
	view := gin.H{
		"id":        f.ID,
		"userId":    f.UserID,
		"loanId":    f.LoanID,
		"amount":    f.Amount.StringFixed(2),
		"reason":    f.Reason,
		"paid":      f.Paid,
		"status":    status,
		"createdAt": f.CreatedAt.Format(time.RFC3339),
		"paidAt":    formatDate(f.PaidAt),
	}
	if f.User.ID != 0 {
		view["username"] = f.User.Username
	}
	return view
}

func fineViews(list []models.Fine) []gin.H {
	items := make([]gin.H, len(list))
	for i, f := range list {
		items[i] = fineView(f)
	}
	return items
}

func fineStatsView(s fines.Stats) gin.H {
	return gin.H{
		"totalFines":  s.Count,
		"totalUnpaid": s.TotalUnpaid.StringFixed(2),
		"totalPaid":   s.TotalPaid.StringFixed(2),
	}
}

func userView(u models.User) gin.H {
	return gin.H{
		"id":       u.ID,
		"username": u.Username,
		"role":     u.Role,
		"email":    u.Email,
		"phone":    u.Phone,
		"address":  u.Address,
	}
}

func studentViews(students []users.StudentSummary) []gin.H {
	items := make([]gin.H, len(students))
	for i, s := range students {
		view := userView(s.User)
		view["totalBorrows"] = s.TotalBorrows
		view["activeBorrows"] = s.ActiveBorrows
		view["unpaidFines"] = s.UnpaidFines.StringFixed(2)
		items[i] = view
	}
	return items
}
