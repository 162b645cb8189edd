// Package report aggregates a group order snapshot into the participant and
// supplier views. Builders are pure: callers fetch the snapshot once and run
// both over it, so the two views always agree.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
)

type ParticipantLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
}

type ParticipantSummary struct {
	ParticipationID int64             `json:"participation_id"`
	UserID          int64             `json:"user_id"`
	FullName        string            `json:"full_name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	Items           []ParticipantLine `json:"items"`
	TotalAmount     int64             `json:"total_amount"`
	ItemCount       int64             `json:"item_count"`
	CreatedAt       time.Time         `json:"created_at"`
}

type ParticipantReport struct {
	GroupOrderID     int64                `json:"group_order_id"`
	Title            string               `json:"title"`
	Deadline         time.Time            `json:"deadline"`
	Status           domain.Status        `json:"status"`
	Participants     []ParticipantSummary `json:"participants"`
	GrandTotal       int64                `json:"grand_total"`
	ParticipantCount int                  `json:"participant_count"`
}

type SupplierLine struct {
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	Category      string `json:"category"`
	TotalQuantity int64  `json:"total_quantity"`
	TotalValue    int64  `json:"total_value"`
}

type SupplierReport struct {
	GroupOrderID     int64          `json:"group_order_id"`
	Title            string         `json:"title"`
	Products         []SupplierLine `json:"products"`
	DistinctProducts int            `json:"distinct_products"`
	TotalItems       int64          `json:"total_items"`
	TotalValue       int64          `json:"total_value"`
}

// BuildParticipantReport orders participants by join time. Totals are summed
// from line items; the stored participation total is not consulted.
func BuildParticipantReport(order *domain.GroupOrder, participations []domain.Participation, users map[int64]domain.User) *ParticipantReport {
	r := &ParticipantReport{
		GroupOrderID: order.ID,
		Title:        order.Title,
		Deadline:     order.Deadline,
		Status:       order.Status,
		Participants: make([]ParticipantSummary, 0, len(participations)),
	}

	seen := make(map[int64]struct{}, len(participations))
	for _, p := range participations {
		summary := ParticipantSummary{
			ParticipationID: p.ID,
			UserID:          p.UserID,
			CreatedAt:       p.CreatedAt,
			Items:           make([]ParticipantLine, 0, len(p.Items)),
		}
		if u, ok := users[p.UserID]; ok {
			summary.FullName = u.FullName
			summary.Email = u.Email
			summary.Phone = u.Phone
		} else {
			summary.FullName = fmt.Sprintf("#%d", p.UserID)
		}

		for _, item := range p.Items {
			summary.Items = append(summary.Items, ParticipantLine{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Category:    item.Category,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				TotalPrice:  item.TotalPrice,
			})
			summary.TotalAmount += item.TotalPrice
			summary.ItemCount += int64(item.Quantity)
		}

		r.Participants = append(r.Participants, summary)
		r.GrandTotal += summary.TotalAmount
		seen[p.UserID] = struct{}{}
	}
	r.ParticipantCount = len(seen)

	sort.SliceStable(r.Participants, func(i, j int) bool {
		a, b := r.Participants[i], r.Participants[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ParticipationID < b.ParticipationID
	})

	return r
}

// BuildSupplierReport drops per-user attribution and sums quantities per
// product. Lines are sorted by category then name for stable output.
func BuildSupplierReport(order *domain.GroupOrder, participations []domain.Participation) *SupplierReport {
	r := &SupplierReport{
		GroupOrderID: order.ID,
		Title:        order.Title,
	}

	byProduct := make(map[int64]*SupplierLine)
	for _, p := range participations {
		for _, item := range p.Items {
			line, ok := byProduct[item.ProductID]
			if !ok {
				line = &SupplierLine{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Category:    item.Category,
				}
				byProduct[item.ProductID] = line
			}
			line.TotalQuantity += int64(item.Quantity)
			line.TotalValue += item.TotalPrice
		}
	}

	r.Products = make([]SupplierLine, 0, len(byProduct))
	for _, line := range byProduct {
		r.Products = append(r.Products, *line)
		r.TotalItems += line.TotalQuantity
		r.TotalValue += line.TotalValue
	}
	r.DistinctProducts = len(r.Products)

	sort.Slice(r.Products, func(i, j int) bool {
		a, b := r.Products[i], r.Products[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		return a.ProductID < b.ProductID
	})

	return r
}
