package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var bodyTemplate = template.Must(template.New("invoice_email").Parse(`<html>
<body>
<p>Hello {{.ContactName}},</p>
{{if .Message}}<p>{{.Message}}</p>{{end}}
<p>Invoice <strong>{{.Number}}</strong> for {{.CompanyName}} is ready.</p>
<table>
<tr><td>Amount due</td><td>{{.AmountDue}}</td></tr>
<tr><td>Due date</td><td>{{.DueAt}}</td></tr>
</table>
<p>Thank you for your business.</p>
</body>
</html>`))

type emailData struct {
	ContactName string
	CompanyName string
	Number      string
	Message     string
	AmountDue   string
	DueAt       string
}

func renderSubject(override, number string) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf("Invoice %s", number)
}

func renderBody(contactName, companyName, number, message string, amountDue int64, dueAt time.Time) (string, error) {
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, emailData{
		ContactName: contactName,
		CompanyName: companyName,
		Number:      number,
		Message:     message,
		AmountDue:   formatMinorUnits(amountDue),
		DueAt:       dueAt.Format("2 January 2006"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatMinorUnits renders cents as a decimal string, currency-agnostic.
func formatMinorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
