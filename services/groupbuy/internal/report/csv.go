package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// utf8BOM lets spreadsheet tools detect UTF-8 and render the Hebrew headers.
const utf8BOM = "\ufeff"

func WriteSupplierCSV(w io.Writer, r *SupplierReport) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"מזהה מוצר", "מוצר", "קטגוריה", "כמות", "סכום"}); err != nil {
		return err
	}

	for _, line := range r.Products {
		if err := cw.Write([]string{
			strconv.FormatInt(line.ProductID, 10),
			line.ProductName,
			line.Category,
			strconv.FormatInt(line.TotalQuantity, 10),
			FormatAmount(line.TotalValue),
		}); err != nil {
			return err
		}
	}

	if err := cw.Write([]string{"", "סה\"כ", "", strconv.FormatInt(r.TotalItems, 10), FormatAmount(r.TotalValue)}); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// WriteParticipantCSV writes one row per line item, prefixed with the
// participant's details.
func WriteParticipantCSV(w io.Writer, r *ParticipantReport) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"שם", "טלפון", "אימייל", "מוצר", "כמות", "מחיר יחידה", "סכום"}); err != nil {
		return err
	}

	for _, p := range r.Participants {
		for _, item := range p.Items {
			if err := cw.Write([]string{
				p.FullName,
				p.Phone,
				p.Email,
				item.ProductName,
				strconv.Itoa(int(item.Quantity)),
				FormatAmount(item.UnitPrice),
				FormatAmount(item.TotalPrice),
			}); err != nil {
				return err
			}
		}
	}

	if err := cw.Write([]string{"סה\"כ", "", "", "", "", "", FormatAmount(r.GrandTotal)}); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// FormatAmount renders agorot as shekels with two decimals.
func FormatAmount(agorot int64) string {
	sign := ""
	if agorot < 0 {
		sign = "-"
		agorot = -agorot
	}
	return fmt.Sprintf("%s%d.%02d", sign, agorot/100, agorot%100)
}
