package domain

import "time"

type ParticipationStatus string

const ParticipationPending ParticipationStatus = "pending"

// Participation is one user's order inside a group order.
type Participation struct {
	ID           int64               `db:"id" json:"id"`
	UserID       int64               `db:"user_id" json:"user_id"`
	GroupOrderID int64               `db:"general_order_id" json:"group_order_id"`
	TotalAmount  int64               `db:"total_amount" json:"total_amount"`
	Status       ParticipationStatus `db:"status" json:"status"`
	Items        []LineItem          `db:"-" json:"items"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// LineItem prices are a snapshot taken at join time and never follow the
// catalog afterwards.
type LineItem struct {
	ID              int64  `db:"id" json:"id"`
	ParticipationID int64  `db:"order_id" json:"participation_id"`
	ProductID       int64  `db:"product_id" json:"product_id"`
	ProductName     string `db:"-" json:"product_name,omitempty"`
	Category        string `db:"-" json:"category,omitempty"`
	Quantity        int32  `db:"quantity" json:"quantity"`
	UnitPrice       int64  `db:"unit_price" json:"unit_price"`
	TotalPrice      int64  `db:"total_price" json:"total_price"`
}

func NewLineItem(product *Product, quantity int32) LineItem {
	return LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Category:    product.Category,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		TotalPrice:  product.Price * int64(quantity),
	}
}

func (p *Participation) CalculateTotal() {
	var total int64
	for _, item := range p.Items {
		total += item.TotalPrice
	}
	p.TotalAmount = total
}

func (p *Participation) ItemCount() int64 {
	var count int64
	for _, item := range p.Items {
		count += int64(item.Quantity)
	}
	return count
}

// Selection is one requested (product, quantity) pair.
type Selection struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}
