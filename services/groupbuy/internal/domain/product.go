package domain

import "time"

// Prices are stored in agorot.
type Product struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Price       int64      `db:"price" json:"price"`
	Category    string     `db:"category" json:"category"`
	ImageUrl    string     `db:"image_url" json:"image_url"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

type UpdateProductInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	ImageUrl    *string `json:"image_url" validate:"omitempty,url"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

func (in *UpdateProductInput) Empty() bool {
	return in.Name == nil && in.Description == nil && in.Price == nil && in.ImageUrl == nil && in.Category == nil
}
