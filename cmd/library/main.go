package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"library_chatbot/pkg/auth"
	"library_chatbot/pkg/catalog"
	"library_chatbot/pkg/chat"
	"library_chatbot/pkg/circuitbreaker"
	"library_chatbot/pkg/config"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/fines"
	"library_chatbot/pkg/ledger"
	"library_chatbot/pkg/models"
	"library_chatbot/pkg/queue"
	"library_chatbot/pkg/users"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const jobRetryInterval = 5 * time.Second

type app struct {
	cfg     *config.Config
	store   *database.Store
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	fines   *fines.Service
	users   *users.Service
	chat    *chat.Interpreter
	tokens  *auth.Issuer
	jobs    *queue.Queue
}

func newApp(db *gorm.DB, cfg *config.Config) *app {
	breaker := circuitbreaker.NewCircuitBreaker(cfg.Storage.MaxFailures, cfg.Storage.Cooldown)
	store := database.NewStore(db, breaker)
	locks := ledger.NewLocks()

	a := &app{
		cfg:     cfg,
		store:   store,
		catalog: catalog.New(store, locks),
		ledger:  ledger.New(store, locks, cfg.Lending),
		users:   users.NewService(store),
		tokens:  auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		jobs:    queue.NewQueue(),
	}
	a.fines = fines.NewService(store, a.ledger)
	a.chat = chat.NewInterpreter(a.catalog, a.ledger)
	return a
}

func main() {
	log.Println("Starting library service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Loaded %s", cfg)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	a := newApp(db, cfg)
	ctx := context.Background()

	if err := a.store.Ping(ctx); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}
	log.Println("Database ping successful")

	if _, err := a.users.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	seedTestData(ctx, a)

	a.jobs.Enqueue(&queue.Job{
		Name:       "sync availability",
		MaxRetries: 10,
		Run: func(ctx context.Context) error {
			_, err := a.ledger.Sync(ctx)
			return err
		},
	})
	a.jobs.RunDue(ctx, jobRetryInterval)
	a.jobs.Start(ctx, jobRetryInterval)

	server := a.router()
	log.Printf("Library service starting on %s", cfg.Addr)
	if err := server.Run(cfg.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (a *app) router() *gin.Engine {
	server := gin.Default()

	server.POST("/api/v1/auth/login", a.login)
	server.POST("/api/v1/auth/signup", a.signUp)
	server.GET("/manage/health", a.healthCheck)

	api := server.Group("/api/v1", a.tokens.Middleware())
	api.POST("/chat", a.chatMessage)
	api.GET("/books", a.getBooks)
	api.GET("/books/available", a.getAvailableBooks)
	api.GET("/books/:bookId", a.getBook)
	api.GET("/categories", a.getCategories)
	api.POST("/books/:bookId/borrow", auth.RequireRole(models.RoleStudent), a.borrowBook)
	api.POST("/books/:bookId/return", auth.RequireRole(models.RoleStudent), a.returnBook)

	me := api.Group("/me")
	me.GET("/loans", a.getMyLoans)
	me.GET("/history", a.getMyHistory)
	me.GET("/fines", a.getMyFines)
	me.PUT("/profile", a.updateMyProfile)
	me.PUT("/password", a.changeMyPassword)

	admin := api.Group("/admin", auth.RequireRole(models.RoleAdmin))
	admin.GET("/dashboard", a.getDashboard)
	admin.POST("/books", a.createBook)
	admin.PUT("/books/:bookId", a.updateBook)
	admin.DELETE("/books/:bookId", a.deleteBook)
	admin.POST("/sync", a.syncAvailability)
	admin.POST("/categories", a.createCategory)
	admin.PUT("/categories/:categoryId", a.updateCategory)
	admin.DELETE("/categories/:categoryId", a.deleteCategory)
	admin.GET("/fines", a.getFines)
	admin.POST("/fines", a.createFine)
	admin.POST("/fines/assess", a.assessFines)
	admin.POST("/fines/:fineId/pay", a.payFine)
	admin.DELETE("/fines/:fineId", a.deleteFine)
	admin.GET("/overdue", a.getOverdue)
	admin.GET("/loans", a.getBorrowLog)
	admin.GET("/students", a.getStudents)
	admin.POST("/students/:userId/password", a.resetStudentPassword)

	return server
}

var sampleBooks = []catalog.BookInput{
	{Title: "Introduction to Algorithms", Author: "Thomas H. Cormen", Genre: "Computer Science"},
	{Title: "Physics for Scientists and Engineers", Author: "Raymond A. Serway", Genre: "Physics"},
	{Title: "Organic Chemistry", Author: "Paula Yurkanis Bruice", Genre: "Chemistry"},
	{Title: "Engineering Mathematics", Author: "B.S. Grewal", Genre: "Mathematics"},
	{Title: "Signals and Systems", Author: "Alan V. Oppenheim", Genre: "Electronics"},
	{Title: "Operating System Concepts", Author: "Abraham Silberschatz", Genre: "Computer Science"},
	{Title: "Linear Algebra and Its Applications", Author: "Gilbert Strang", Genre: "Mathematics"},
	{Title: "Computer Networks", Author: "Andrew S. Tanenbaum", Genre: "Computer Science"},
	{Title: "Introduction to Machine Learning", Author: "Ethem Alpaydin", Genre: "AI/ML"},
	{Title: "Fluid Mechanics", Author: "Frank M. White", Genre: "Mechanical"},
}

// seedTestData fills an empty catalog with sample books.
func seedTestData(ctx context.Context, a *app) {
	existing, err := a.catalog.SearchBooks(ctx, catalog.Filter{})
	if err != nil {
		log.Printf("Failed to check catalog: %v", err)
		return
	}
	if len(existing) > 0 {
		return
	}
	for _, in := range sampleBooks {
		if _, err := a.catalog.AddBook(ctx, in); err != nil {
			log.Printf("Failed to create sample book %s: %v", in.Title, err)
		}
	}
	log.Printf("Library test data seeded with %d books", len(sampleBooks))
}

func (a *app) healthCheck(c *gin.Context) {
	if err := a.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	if state := a.store.BreakerState(); state == circuitbreaker.StateOpen {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Storage circuit breaker is " + state.String(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "UP",
		"details":     "Host " + a.cfg.Addr + " is active",
		"pendingJobs": a.jobs.Names(),
	})
}
