package email

import (
	"testing"
	"time"

	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
	"github.com/stretchr/testify/require"
)

var dana = domain.Recipient{UserID: 7, FullName: "דנה כהן", Email: "dana@example.com"}

func TestFormatShekels(t *testing.T) {
	require.Equal(t, "12.05 ₪", formatShekels(1205))
	require.Equal(t, "0.00 ₪", formatShekels(0))
	require.Equal(t, "-0.50 ₪", formatShekels(-50))
}

func TestConfirmation(t *testing.T) {
	r := NewRenderer("https://shop.example")

	msg, err := r.Confirmation(dana, generalDomain.OrderConfirmationEvent{
		GroupOrderID:    3,
		GroupOrderTitle: "מאי",
		UserID:          7,
		Deadline:        time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
		Items: []generalDomain.ConfirmationItem{
			{ProductID: 1, ProductName: "Liquid Mint", Quantity: 2, UnitPrice: 1205, TotalPrice: 2410},
		},
		TotalAmount: 2410,
	})
	require.NoError(t, err)

	require.Equal(t, "dana@example.com", msg.To)
	require.Equal(t, "אישור הזמנה: מאי", msg.Subject)
	require.Contains(t, msg.HTML, `dir="rtl"`)
	require.Contains(t, msg.HTML, "דנה כהן")
	require.Contains(t, msg.HTML, "Liquid Mint")
	require.Contains(t, msg.HTML, "24.10 ₪")
	require.Contains(t, msg.HTML, "https://shop.example/group-orders/3")
	require.NotContains(t, msg.HTML, "עודכנה")
}

func TestConfirmation_Updated(t *testing.T) {
	r := NewRenderer("https://shop.example")

	msg, err := r.Confirmation(dana, generalDomain.OrderConfirmationEvent{GroupOrderTitle: "מאי", Updated: true})
	require.NoError(t, err)
	require.Equal(t, "עדכון הזמנה: מאי", msg.Subject)
	require.Contains(t, msg.HTML, "עודכנה")
}

func TestOpened_EscapesContent(t *testing.T) {
	r := NewRenderer("https://shop.example")

	msg, err := r.Opened(dana, generalDomain.GroupOrderStatusEvent{
		GroupOrderID: 9,
		Title:        "<script>alert(1)</script>",
		Deadline:     time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotContains(t, msg.HTML, "<script>")
	require.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestClosed(t *testing.T) {
	r := NewRenderer("https://shop.example")

	msg, err := r.Closed(dana, generalDomain.GroupOrderStatusEvent{GroupOrderID: 9, Title: "יוני"})
	require.NoError(t, err)
	require.Equal(t, "ההזמנה הקבוצתית נסגרה: יוני", msg.Subject)
	require.Contains(t, msg.HTML, "נסגרה")
}
