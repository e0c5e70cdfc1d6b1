// Package users handles accounts: student sign-up, credential checks,
// profiles and the bootstrap administrator.
package users

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/database"
	"library_chatbot/pkg/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned for any failed login, whatever the cause.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", apperr.ErrInvalidInput)

type Service struct {
	store *database.Store
	cost  int
}

func NewService(store *database.Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

type SignUpInput struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
}

type ProfileInput struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// SignUp registers a student account.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if username == "" || in.Password == "" || in.ConfirmPassword == "" || email == "" || phone == "" {
		return nil, apperr.Invalid("username, password, confirm password, email, and phone are required")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperr.Invalid("password and confirm password do not match")
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleStudent,
		Email:        &email,
		Phone:        phone,
		Address:      strings.TrimSpace(in.Address),
	}

	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.User{}).Where("username = ? OR email = ?", username, email).Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("username or email already taken")
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Student %s signed up (id %d)", user.Username, user.ID)
	return &user, nil
}

// Authenticate checks the credentials of a user holding role.
func (s *Service) Authenticate(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	var user models.User
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		err := db.Where("username = ? AND role = ?", strings.TrimSpace(username), role).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		return findUser(db, id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (*models.User, error) {
	var email *string
	if e := strings.TrimSpace(in.Email); e != "" {
		email = &e
	}

	var user models.User
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := findUser(tx, userID, &user); err != nil {
			return err
		}
		if email != nil {
			var n int64
			if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", *email, userID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return apperr.Conflict("email already taken")
			}
		}

		user.Email = email
		user.Phone = strings.TrimSpace(in.Phone)
		user.Address = strings.TrimSpace(in.Address)
		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"email":   user.Email,
			"phone":   user.Phone,
			"address": user.Address,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID uint, current, newPassword, confirm string) error {
	if current == "" {
		return apperr.Invalid("current password is required to change password")
	}
	if newPassword == "" || confirm == "" {
		return apperr.Invalid("new password and confirm password are required")
	}
	if newPassword != confirm {
		return apperr.Invalid("new password and confirm password do not match")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return apperr.Invalid("incorrect current password")
	}
	return s.setPassword(ctx, userID, newPassword)
}

// ResetPassword lets an administrator overwrite a student's password.
func (s *Service) ResetPassword(ctx context.Context, studentID uint, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.Invalid("new password is required")
	}
	user, err := s.GetUser(ctx, studentID)
	if err != nil {
		return err
	}
	if user.Role != models.RoleStudent {
		return apperr.NotFound("student")
	}
	if err := s.setPassword(ctx, studentID, newPassword); err != nil {
		return err
	}
	log.Printf("Password of student %d reset by administrator", studentID)
	return nil
}

type StudentSummary struct {
	models.User
	TotalBorrows  int64           `json:"totalBorrows"`
	ActiveBorrows int64           `json:"activeBorrows"`
	UnpaidFines   decimal.Decimal `json:"unpaidFines"`
}

// ListStudents returns every student ordered by username, with their borrow
// counts and outstanding fines.
func (s *Service) ListStudents(ctx context.Context) ([]StudentSummary, error) {
	var students []models.User
	var loans []models.Loan
	var fines []models.Fine
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		if err := db.Where("role = ?", models.RoleStudent).Order("username").Find(&students).Error; err != nil {
			return err
		}
		if err := db.Select("user_id", "returned").Find(&loans).Error; err != nil {
			return err
		}
		return db.Select("user_id", "amount").Where("paid = ?", false).Find(&fines).Error
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*StudentSummary, len(students))
	out := make([]StudentSummary, len(students))
	for i, u := range students {
		out[i] = StudentSummary{User: u, UnpaidFines: decimal.Zero}
		byID[u.ID] = &out[i]
	}
	for _, l := range loans {
		if st, ok := byID[l.UserID]; ok {
			st.TotalBorrows++
			if !l.Returned {
				st.ActiveBorrows++
			}
		}
	}
	for _, f := range fines {
		if st, ok := byID[f.UserID]; ok {
			st.UnpaidFines = st.UnpaidFines.Add(f.Amount)
		}
	}
	return out, nil
}

// EnsureAdmin creates the administrator account when no user carries
// username yet. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, apperr.Invalid("admin username and password are required")
	}
	hash, err := s.hash(password)
	if err != nil {
		return false, err
	}

	created := false
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		created = true
		return tx.Create(&models.User{Username: username, PasswordHash: hash, Role: models.RoleAdmin}).Error
	})
	if err != nil {
		return false, err
	}

	if created {
		log.Printf("Default admin user '%s' created", username)
	} else {
		log.Println("Admin user already exists")
	}
	return created, nil
}

func (s *Service) setPassword(ctx context.Context, userID uint, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.store.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash).Error
	})
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperr.Invalid("password: %v", err)
	}
	return string(hash), nil
}

func findUser(db *gorm.DB, id uint, user *models.User) error {
	err := db.First(user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("user")
	}
	return err
}
