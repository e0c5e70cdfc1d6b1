package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/auth"
	"library_chatbot/pkg/catalog"
	"library_chatbot/pkg/chat"
	"library_chatbot/pkg/models"
	"library_chatbot/pkg/users"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive number"})
		return 0, false
	}
	return uint(id), true
}

func principal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := auth.FromGin(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
	}
	return p, ok
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func (a *app) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	role := models.Role(strings.ToLower(req.Role))
	if role == "" {
		role = models.RoleStudent
	}
	if role != models.RoleStudent && role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin or student"})
		return
	}

	user, err := a.users.Authenticate(c.Request.Context(), req.Username, req.Password, role)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := a.tokens.Issue(auth.Principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": user.Username,
		"role":     user.Role,
	})
}

func (a *app) signUp(c *gin.Context) {
	var req users.SignUpInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := a.users.SignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userView(*user))
}

type chatRequest struct {
	Message string `json:"message"`
}

func (a *app) chatMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res := a.chat.Interpret(c.Request.Context(), *p, req.Message)
	if res.Outcome == chat.OutcomeRedirect {
		c.JSON(http.StatusOK, gin.H{"redirect": res.Target})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": res.Text})
}

func (a *app) getBooks(c *gin.Context) {
	filter := catalog.Filter{
		Query:        c.Query("search"),
		Availability: c.Query("availability"),
	}
	if raw := c.Query("category"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category must be a number"})
			return
		}
		categoryID := uint(id)
		filter.CategoryID = &categoryID
	}

	books, err := a.catalog.SearchBooks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totalElements": len(books),
		"items":         bookViews(books),
	})
}

func (a *app) getAvailableBooks(c *gin.Context) {
	books, err := a.catalog.ListAvailableBooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totalElements": len(books),
		"items":         bookViews(books),
	})
}

func (a *app) getBook(c *gin.Context) {
	id, ok := paramID(c, "bookId")
	if !ok {
		return
	}
	book, err := a.catalog.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookView(*book))
}

func (a *app) getCategories(c *gin.Context) {
	categories, err := a.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(categories))
	for i, cat := range categories {
		items[i] = gin.H{"id": cat.ID, "name": cat.Name, "description": cat.Description}
	}
	c.JSON(http.StatusOK, items)
}

func (a *app) borrowBook(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "bookId")
	if !ok {
		return
	}
	loan, err := a.ledger.Borrow(c.Request.Context(), p.UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanView(*loan))
}

func (a *app) returnBook(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "bookId")
	if !ok {
		return
	}
	loan, err := a.ledger.Return(c.Request.Context(), p.UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanView(*loan))
}

func (a *app) getMyLoans(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	loans, err := a.ledger.ListBorrowed(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanViews(loans))
}

func (a *app) getMyHistory(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	entries, err := a.ledger.History(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyViews(entries))
}

func (a *app) getMyFines(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := a.fines.ListByUser(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fineViews(list))
}

func (a *app) updateMyProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req users.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := a.users.UpdateProfile(c.Request.Context(), p.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userView(*user))
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (a *app) changeMyPassword(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := a.users.ChangePassword(c.Request.Context(), p.UserID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
