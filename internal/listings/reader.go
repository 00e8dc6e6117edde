// Package listings reads the marketplace book listings that orders are placed against.
package listings

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/models"
)

// StatusActive marks a listing that can still be bought.
const StatusActive = "active"

var (
	ErrNotFound    = errors.New("listing not found")
	ErrUnavailable = errors.New("listing is not available for purchase")
)

// Reader is the narrow view checkout needs of a listing.
type Reader interface {
	FindAvailable(ctx context.Context, id uuid.UUID) (*models.Book, error)
}

type BookReader struct {
	db *gorm.DB
}

func NewBookReader(db *gorm.DB) *BookReader {
	return &BookReader{db: db}
}

// FindAvailable returns the book when it exists and is still listed.
func (r *BookReader) FindAvailable(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(book.Status, StatusActive) {
		return nil, ErrUnavailable
	}
	if !book.Price.IsPositive() {
		return nil, ErrUnavailable
	}
	return &book, nil
}
