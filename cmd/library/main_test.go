package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"library_chatbot/pkg/auth"
	"library_chatbot/pkg/config"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/models"
	"library_chatbot/pkg/users"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupTestApp(t *testing.T) (*app, *gorm.DB) {
	gin.SetMode(gin.TestMode)
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to connect test database: %v", err)
	}
	cfg := &config.Config{
		Addr:    ":8080",
		Auth:    config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Lending: config.LendingConfig{LoanPeriodDays: 14, MaxBooksPerUser: 5, FinePerDay: decimal.NewFromInt(1)},
		Storage: config.StorageConfig{MaxFailures: 5, Cooldown: time.Minute},
	}
	a := newApp(db, cfg)
	a.users.WithCost(bcrypt.MinCost)
	return a, db
}

func createStudent(t *testing.T, a *app, username string) (*models.User, string) {
	user, err := a.users.SignUp(context.Background(), users.SignUpInput{
		Username:        username,
		Password:        "pass",
		ConfirmPassword: "pass",
		Email:           username + "@example.com",
		Phone:           "555-0100",
	})
	require.NoError(t, err)
	token, err := a.tokens.Issue(auth.Principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	require.NoError(t, err)
	return user, token
}

func adminToken(t *testing.T, a *app, db *gorm.DB) string {
	_, err := a.users.EnsureAdmin(context.Background(), "admin", "admin")
	require.NoError(t, err)
	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
	token, err := a.tokens.Issue(auth.Principal{UserID: admin.ID, Username: admin.Username, Role: admin.Role})
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func TestHealthCheck(t *testing.T) {
	a, _ := setupTestApp(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/manage/health", nil)

	a.healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "UP", response["status"])
}

func TestSeedTestData(t *testing.T) {
	a, db := setupTestApp(t)

	seedTestData(context.Background(), a)
	seedTestData(context.Background(), a)

	var count int64
	db.Model(&models.Book{}).Count(&count)
	assert.Equal(t, int64(len(sampleBooks)), count)
}

func TestLogin(t *testing.T) {
	a, _ := setupTestApp(t)
	r := a.router()
	createStudent(t, a, "nina")

	w := doRequest(t, r, "POST", "/api/v1/auth/login", "", gin.H{"username": "nina", "password": "pass", "role": "student"})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	p, err := a.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "nina", p.Username)

	tests := []struct {
		name     string
		body     gin.H
		expected int
	}{
		{name: "wrong password", body: gin.H{"username": "nina", "password": "nope"}, expected: http.StatusUnauthorized},
		{name: "wrong role", body: gin.H{"username": "nina", "password": "pass", "role": "admin"}, expected: http.StatusUnauthorized},
		{name: "unknown role", body: gin.H{"username": "nina", "password": "pass", "role": "librarian"}, expected: http.StatusBadRequest},
		{name: "missing password", body: gin.H{"username": "nina"}, expected: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, "POST", "/api/v1/auth/login", "", tt.body)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestSignUp(t *testing.T) {
	a, _ := setupTestApp(t)
	r := a.router()
	body := gin.H{"username": "omar", "password": "pw", "confirmPassword": "pw", "email": "omar@example.com", "phone": "555"}

	w := doRequest(t, r, "POST", "/api/v1/auth/signup", "", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "student", decode(t, w)["role"])

	w = doRequest(t, r, "POST", "/api/v1/auth/signup", "", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChatEndpoint(t *testing.T) {
	a, db := setupTestApp(t)
	r := a.router()
	seedTestData(context.Background(), a)
	_, student := createStudent(t, a, "nina")
	admin := adminToken(t, a, db)

	w := doRequest(t, r, "POST", "/api/v1/chat", student, gin.H{"message": "borrow 3"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["response"], "Book ID 3 borrowed successfully")

	w = doRequest(t, r, "POST", "/api/v1/chat", student, gin.H{"message": "borrow abc"})
	assert.Equal(t, "Format: borrow <book_id> - Book ID must be a number.", decode(t, w)["response"])

	w = doRequest(t, r, "POST", "/api/v1/chat", admin, gin.H{"message": "dashboard"})
	assert.Equal(t, gin.H{"redirect": "/admin/dashboard"}, gin.H(decode(t, w)))

	w = doRequest(t, r, "POST", "/api/v1/chat", admin, gin.H{"message": "delete book 3"})
	assert.Contains(t, decode(t, w)["response"], "currently borrowed")

	w = doRequest(t, r, "POST", "/api/v1/chat", "", gin.H{"message": "help"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBorrowAndReturnEndpoints(t *testing.T) {
	a, _ := setupTestApp(t)
	r := a.router()
	seedTestData(context.Background(), a)
	_, student := createStudent(t, a, "nina")
	_, other := createStudent(t, a, "raj")

	w := doRequest(t, r, "POST", "/api/v1/books/1/borrow", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["returned"])

	w = doRequest(t, r, "POST", "/api/v1/books/1/borrow", other, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, "POST", "/api/v1/books/1/return", other, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, "POST", "/api/v1/books/abc/borrow", student, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, "GET", "/api/v1/me/loans", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var loans []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loans))
	require.Len(t, loans, 1)
	assert.Equal(t, "Introduction to Algorithms", loans[0]["title"])

	w = doRequest(t, r, "POST", "/api/v1/books/1/return", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["returned"])

	w = doRequest(t, r, "GET", "/api/v1/me/history", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.NotNil(t, history[0]["returnDate"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a, db := setupTestApp(t)
	r := a.router()
	_, student := createStudent(t, a, "nina")
	admin := adminToken(t, a, db)

	assert.Equal(t, http.StatusUnauthorized, doRequest(t, r, "GET", "/api/v1/admin/dashboard", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(t, r, "GET", "/api/v1/admin/dashboard", student, nil).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(t, r, "POST", "/api/v1/books/1/borrow", admin, nil).Code)

	w := doRequest(t, r, "GET", "/api/v1/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats, _ := decode(t, w)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["students"])
}

func TestAdminBookLifecycle(t *testing.T) {
	a, db := setupTestApp(t)
	r := a.router()
	admin := adminToken(t, a, db)

	w := doRequest(t, r, "POST", "/api/v1/admin/categories", admin, gin.H{"name": "Physics"})
	require.Equal(t, http.StatusCreated, w.Code)
	categoryID := decode(t, w)["id"]

	w = doRequest(t, r, "POST", "/api/v1/admin/books", admin, gin.H{"title": "Optics", "author": "Eugene Hecht", "categoryId": categoryID})
	require.Equal(t, http.StatusCreated, w.Code)
	book := decode(t, w)
	assert.Equal(t, true, book["available"])

	w = doRequest(t, r, "PUT", "/api/v1/admin/books/1", admin, gin.H{"title": "Optics (5th ed.)", "author": "Eugene Hecht", "isbn": "978-0133977226"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Optics (5th ed.)", decode(t, w)["title"])

	w = doRequest(t, r, "GET", "/api/v1/books?search=optics&availability=available", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["totalElements"])

	w = doRequest(t, r, "GET", "/api/v1/books?availability=lost", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, "POST", "/api/v1/admin/books", admin, gin.H{"title": "No author"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNoContent, doRequest(t, r, "DELETE", "/api/v1/admin/books/1", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, r, "DELETE", "/api/v1/admin/books/1", admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(t, r, "DELETE", "/api/v1/admin/categories/1", admin, nil).Code)
}

func TestFineEndpoints(t *testing.T) {
	a, db := setupTestApp(t)
	r := a.router()
	user, student := createStudent(t, a, "nina")
	admin := adminToken(t, a, db)

	w := doRequest(t, r, "POST", "/api/v1/admin/fines", admin, gin.H{"userId": user.ID, "amount": "2.50", "reason": "Torn page"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fine := decode(t, w)
	assert.Equal(t, "2.50", fine["amount"])
	assert.Equal(t, "Unpaid", fine["status"])

	w = doRequest(t, r, "POST", "/api/v1/admin/fines", admin, gin.H{"userId": user.ID, "amount": 0, "reason": "Nothing"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, "POST", "/api/v1/admin/fines/1/pay", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Paid", decode(t, w)["status"])

	w = doRequest(t, r, "GET", "/api/v1/me/fines", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	w = doRequest(t, r, "GET", "/api/v1/admin/fines", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats, _ := decode(t, w)["stats"].(map[string]interface{})
	assert.Equal(t, "2.50", stats["totalPaid"])

	w = doRequest(t, r, "POST", "/api/v1/admin/fines/assess", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["created"])

	assert.Equal(t, http.StatusNoContent, doRequest(t, r, "DELETE", "/api/v1/admin/fines/1", admin, nil).Code)
}

func TestProfileAndPassword(t *testing.T) {
	a, db := setupTestApp(t)
	r := a.router()
	user, student := createStudent(t, a, "nina")
	admin := adminToken(t, a, db)

	w := doRequest(t, r, "PUT", "/api/v1/me/profile", student, gin.H{"email": "nina@uni.edu", "phone": "555-0199", "address": "Block C"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Block C", decode(t, w)["address"])

	w = doRequest(t, r, "PUT", "/api/v1/me/password", student, gin.H{"currentPassword": "pass", "newPassword": "new", "confirmPassword": "new"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, r, "POST", fmt.Sprintf("/api/v1/admin/students/%d/password", user.ID), admin, gin.H{"newPassword": "reset"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, r, "POST", "/api/v1/auth/login", "", gin.H{"username": "nina", "password": "reset"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, "GET", "/api/v1/admin/students", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var students []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &students))
	require.Len(t, students, 1)
	assert.Equal(t, "0.00", students[0]["unpaidFines"])
}
