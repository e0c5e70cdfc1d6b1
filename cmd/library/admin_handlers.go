package main

import (
	"net/http"

	"library_chatbot/pkg/catalog"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dashboardListSize = 10

func (a *app) getDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := a.ledger.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	fineStats, err := a.fines.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	overdue, err := a.ledger.Overdue(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	recent, err := a.ledger.BorrowLog(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if len(overdue) > dashboardListSize {
		overdue = overdue[:dashboardListSize]
	}
	if len(recent) > dashboardListSize {
		recent = recent[:dashboardListSize]
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":         stats,
		"fines":         fineStatsView(fineStats),
		"overdueBooks":  overdueViews(overdue),
		"recentBorrows": loanViews(recent),
	})
}

func (a *app) createBook(c *gin.Context) {
	var req catalog.BookInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	book, err := a.catalog.AddBook(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookView(*book))
}

func (a *app) updateBook(c *gin.Context) {
	id, ok := paramID(c, "bookId")
	if !ok {
		return
	}
	var req catalog.BookInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	book, err := a.catalog.UpdateBook(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookView(*book))
}

func (a *app) deleteBook(c *gin.Context) {
	id, ok := paramID(c, "bookId")
	if !ok {
		return
	}
	if _, err := a.catalog.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) syncAvailability(c *gin.Context) {
	changed, err := a.ledger.Sync(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrected": changed})
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *app) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	category, err := a.catalog.AddCategory(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": category.ID, "name": category.Name, "description": category.Description})
}

func (a *app) updateCategory(c *gin.Context) {
	id, ok := paramID(c, "categoryId")
	if !ok {
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	category, err := a.catalog.UpdateCategory(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": category.ID, "name": category.Name, "description": category.Description})
}

func (a *app) deleteCategory(c *gin.Context) {
	id, ok := paramID(c, "categoryId")
	if !ok {
		return
	}
	if err := a.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) getFines(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := a.fines.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := a.fines.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats": fineStatsView(stats),
		"items": fineViews(list),
	})
}

type fineRequest struct {
	UserID uint            `json:"userId" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (a *app) createFine(c *gin.Context) {
	var req fineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, amount and reason are required"})
		return
	}
	fine, err := a.fines.Add(c.Request.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fineView(*fine))
}

func (a *app) payFine(c *gin.Context) {
	id, ok := paramID(c, "fineId")
	if !ok {
		return
	}
	fine, err := a.fines.MarkPaid(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fineView(*fine))
}

func (a *app) deleteFine(c *gin.Context) {
	id, ok := paramID(c, "fineId")
	if !ok {
		return
	}
	if err := a.fines.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) assessFines(c *gin.Context) {
	created, err := a.fines.AssessOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created": len(created),
		"items":   fineViews(created),
	})
}

func (a *app) getOverdue(c *gin.Context) {
	overdue, err := a.ledger.Overdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overdueViews(overdue))
}

func (a *app) getBorrowLog(c *gin.Context) {
	loans, err := a.ledger.BorrowLog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanViews(loans))
}

func (a *app) getStudents(c *gin.Context) {
	students, err := a.users.ListStudents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, studentViews(students))
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (a *app) resetStudentPassword(c *gin.Context) {
	id, ok := paramID(c, "userId")
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := a.users.ResetPassword(c.Request.Context(), id, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
