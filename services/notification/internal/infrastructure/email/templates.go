package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
)

var israelTZ = loadLocation("Asia/Jerusalem")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var funcs = template.FuncMap{
	"shekels": formatShekels,
	"when": func(t time.Time) string {
		return t.In(israelTZ).Format("02/01/2006 15:04")
	},
}

func formatShekels(agorot int64) string {
	sign := ""
	if agorot < 0 {
		sign = "-"
		agorot = -agorot
	}
	return fmt.Sprintf("%s%d.%02d ₪", sign, agorot/100, agorot%100)
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="he" dir="rtl">
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="direction: rtl; text-align: right; font-family: Arial, sans-serif;">
{{template "content" .}}
<p style="color: #888; font-size: 12px;">הודעה זו נשלחה אוטומטית, אין להשיב עליה.</p>
</body>
</html>{{end}}`

const confirmationContent = `{{define "content"}}
<h2>שלום {{.Name}},</h2>
{{if .Event.Updated}}<p>ההזמנה שלך בהזמנה הקבוצתית "{{.Event.GroupOrderTitle}}" עודכנה.</p>
{{else}}<p>תודה! ההזמנה שלך בהזמנה הקבוצתית "{{.Event.GroupOrderTitle}}" התקבלה.</p>
{{end}}<table border="1" cellpadding="6" style="border-collapse: collapse;">
<tr><th>מוצר</th><th>כמות</th><th>מחיר יחידה</th><th>סה"כ</th></tr>
{{range .Event.Items}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{shekels .UnitPrice}}</td><td>{{shekels .TotalPrice}}</td></tr>
{{end}}</table>
<p><strong>סה"כ לתשלום: {{shekels .Event.TotalAmount}}</strong></p>
<p>ניתן לעדכן את ההזמנה עד {{when .Event.Deadline}}.</p>
<p><a href="{{.Link}}">צפייה בהזמנה</a></p>
{{end}}`

const openedContent = `{{define "content"}}
<h2>שלום {{.Name}},</h2>
<p>הזמנה קבוצתית חדשה נפתחה: <strong>{{.Event.Title}}</strong></p>
{{if .Event.Description}}<p>{{.Event.Description}}</p>
{{end}}<p>ההזמנה פתוחה עד {{when .Event.Deadline}}.</p>
<p><a href="{{.Link}}">להצטרפות להזמנה</a></p>
{{end}}`

const closedContent = `{{define "content"}}
<h2>שלום {{.Name}},</h2>
<p>ההזמנה הקבוצתית "{{.Event.Title}}" נסגרה ואינה מקבלת שינויים נוספים.</p>
<p>נעדכן אותך כשההזמנה תגיע.</p>
{{end}}`

// Renderer builds the Hebrew right-to-left emails for each event type.
type Renderer struct {
	baseURL      string
	confirmation *template.Template
	opened       *template.Template
	closed       *template.Template
}

func NewRenderer(baseURL string) *Renderer {
	return &Renderer{
		baseURL:      baseURL,
		confirmation: parse("confirmation", confirmationContent),
		opened:       parse("opened", openedContent),
		closed:       parse("closed", closedContent),
	}
}

func parse(name, content string) *template.Template {
	t := template.Must(template.New(name).Funcs(funcs).Parse(layout))
	return template.Must(t.Parse(content))
}

type view[T any] struct {
	Subject string
	Name    string
	Link    string
	Event   T
}

func (r *Renderer) orderLink(groupOrderID int64) string {
	return fmt.Sprintf("%s/group-orders/%d", r.baseURL, groupOrderID)
}

func (r *Renderer) Confirmation(to domain.Recipient, event generalDomain.OrderConfirmationEvent) (domain.Message, error) {
	subject := fmt.Sprintf("אישור הזמנה: %s", event.GroupOrderTitle)
	if event.Updated {
		subject = fmt.Sprintf("עדכון הזמנה: %s", event.GroupOrderTitle)
	}

	return render(r.confirmation, to, view[generalDomain.OrderConfirmationEvent]{
		Subject: subject,
		Name:    to.FullName,
		Link:    r.orderLink(event.GroupOrderID),
		Event:   event,
	})
}

func (r *Renderer) Opened(to domain.Recipient, event generalDomain.GroupOrderStatusEvent) (domain.Message, error) {
	return render(r.opened, to, view[generalDomain.GroupOrderStatusEvent]{
		Subject: fmt.Sprintf("הזמנה קבוצתית חדשה נפתחה: %s", event.Title),
		Name:    to.FullName,
		Link:    r.orderLink(event.GroupOrderID),
		Event:   event,
	})
}

func (r *Renderer) Closed(to domain.Recipient, event generalDomain.GroupOrderStatusEvent) (domain.Message, error) {
	return render(r.closed, to, view[generalDomain.GroupOrderStatusEvent]{
		Subject: fmt.Sprintf("ההזמנה הקבוצתית נסגרה: %s", event.Title),
		Name:    to.FullName,
		Link:    r.orderLink(event.GroupOrderID),
		Event:   event,
	})
}

func render[T any](t *template.Template, to domain.Recipient, data view[T]) (domain.Message, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return domain.Message{}, fmt.Errorf("render %s email: %w", t.Name(), err)
	}

	return domain.Message{To: to.Email, Subject: data.Subject, HTML: buf.String()}, nil
}
