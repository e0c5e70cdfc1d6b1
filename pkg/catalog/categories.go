package catalog

import (
	"context"
	"errors"
	"log"
	"strings"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/models"

	"gorm.io/gorm"
)

func (c *Catalog) AddCategory(ctx context.Context, name, description string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("category name is required")
	}

	category := models.Category{Name: name, Description: strings.TrimSpace(description)}
	err := c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := checkCategoryName(tx, 0, name); err != nil {
			return err
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Added category %d: %s", category.ID, category.Name)
	return &category, nil
}

func (c *Catalog) UpdateCategory(ctx context.Context, id uint, name, description string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("category name is required")
	}

	var category models.Category
	err := c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&category, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("category")
			}
			return err
		}
		if err := checkCategoryName(tx, id, name); err != nil {
			return err
		}
		category.Name = name
		category.Description = strings.TrimSpace(description)
		return tx.Model(&models.Category{}).Where("id = ?", id).
			Updates(map[string]interface{}{"name": category.Name, "description": category.Description}).Error
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// DeleteCategory refuses categories still assigned to a book.
func (c *Catalog) DeleteCategory(ctx context.Context, id uint) error {
	return c.store.Transaction(ctx, func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("category")
			}
			return err
		}

		var inUse int64
		if err := tx.Model(&models.Book{}).Where("category_id = ?", id).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return apperr.Conflict("category %q is in use by %d books", category.Name, inUse)
		}
		return tx.Delete(&models.Category{}, id).Error
	})
}

func (c *Catalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := c.store.Read(ctx, func(db *gorm.DB) error {
		return db.Order("name").Find(&categories).Error
	})
	return categories, err
}

func checkCategoryName(tx *gorm.DB, selfID uint, name string) error {
	var n int64
	if err := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", name, selfID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("category %q already exists", name)
	}
	return nil
}
