package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// EmailContent is a rendered transactional email
type EmailContent struct {
	Subject string
	HTML    string
}

// PaymentSuccessData feeds the payment confirmation email
type PaymentSuccessData struct {
	UserName        string
	Amount          decimal.Decimal
	InvoiceNumber   string
	PaymentMethod   string
	TransactionDate string
	ItemName        string
}

// MembershipActivationData feeds the membership activation email
type MembershipActivationData struct {
	UserName           string
	MembershipName     string
	MembershipDuration string
	StartDate          string
	EndDate            string
	Price              decimal.Decimal
	InvoiceNumber      string
	Benefits           []string
}

func appURL() string {
	if v := os.Getenv("APP_URL"); v != "" {
		return v
	}
	return "https://app.example.com"
}

func emailWrapper(content string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body style="margin:0;background-color:#f3f4f6;font-family:Arial,sans-serif;">`+
		`<div style="max-width:600px;margin:0 auto;padding:24px;background-color:#ffffff;">%s</div>`+
		`</body></html>`, content)
}

// PaymentSuccessEmail renders the payment confirmation sent as soon as a
// payment is confirmed, before activation details follow.
func PaymentSuccessEmail(data PaymentSuccessData) EmailContent {
	content := fmt.Sprintf(`
<h2 style="color:#111827;">Pembayaran Berhasil!</h2>
<p>Halo <strong>%s</strong>,<br>Pembayaran Anda telah dikonfirmasi. Terima kasih!</p>
<table style="width:100%%;font-size:14px;color:#374151;">
<tr><td><strong>Item:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Metode Pembayaran:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Tanggal:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Invoice:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Total Dibayar:</strong></td><td style="text-align:right;font-weight:bold;">Rp %s</td></tr>
</table>
<p><a href="%s/dashboard/transactions">Lihat Invoice</a></p>
<p style="color:#6b7280;font-size:14px;">Akses Anda akan aktif dalam beberapa saat.</p>`,
		data.UserName, data.ItemName, data.PaymentMethod, data.TransactionDate,
		data.InvoiceNumber, data.Amount.StringFixed(0), appURL())

	return EmailContent{
		Subject: fmt.Sprintf("Pembayaran Berhasil - Invoice %s", data.InvoiceNumber),
		HTML:    emailWrapper(content),
	}
}

// MembershipActivationEmail renders the activation email enumerating the
// benefits of the freshly activated membership tier.
func MembershipActivationEmail(data MembershipActivationData) EmailContent {
	benefits := data.Benefits
	if len(benefits) == 0 {
		benefits = []string{
			"Akses ke semua kursus premium",
			"Bergabung dengan komunitas eksklusif",
			"Database buyer & supplier internasional",
			"Template dokumen ekspor lengkap",
			"Konsultasi gratis dengan mentor ahli",
		}
	}

	var items strings.Builder
	for _, b := range benefits {
		items.WriteString(fmt.Sprintf(`<li style="margin-bottom:8px;">%s</li>`, b))
	}

	endDate := data.EndDate
	if endDate == "" {
		endDate = "Selamanya"
	}

	content := fmt.Sprintf(`
<h2 style="color:#111827;">Selamat! Membership Anda Aktif</h2>
<p>Halo <strong>%s</strong>,</p>
<p>Pembayaran Anda telah berhasil diproses dan membership <strong>%s</strong> Anda sudah aktif!</p>
<table style="width:100%%;font-size:14px;color:#374151;">
<tr><td><strong>Paket Membership:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Durasi:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Tanggal Mulai:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Berakhir Pada:</strong></td><td style="text-align:right;">%s</td></tr>
<tr><td><strong>Total Pembayaran:</strong></td><td style="text-align:right;font-weight:bold;">Rp %s</td></tr>
<tr><td style="font-size:12px;color:#6b7280;">Invoice:</td><td style="text-align:right;font-size:12px;color:#6b7280;">%s</td></tr>
</table>
<h3>Benefit yang Anda Dapatkan:</h3>
<ul style="padding-left:24px;color:#374151;">%s</ul>
<p><a href="%s/dashboard">Mulai Belajar Sekarang</a></p>`,
		data.UserName, data.MembershipName, data.MembershipName,
		data.MembershipDuration, data.StartDate, endDate,
		data.Price.StringFixed(0), data.InvoiceNumber, items.String(), appURL())

	return EmailContent{
		Subject: fmt.Sprintf("Selamat! Membership %s Anda Sudah Aktif", data.MembershipName),
		HTML:    emailWrapper(content),
	}
}
