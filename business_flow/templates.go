package businessflow

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Message template copy. The wording is customer-facing Indonesian; the
// greeting/closing rotation keeps bulk sends from looking machine-stamped.
var greetings = []string{
	"Halo", "Hai", "Assalamualaikum", "Selamat pagi", "Selamat siang",
}

var closings = []string{
	"Terima kasih 🙏", "Terima kasih banyak", "Salam hangat",
	"Terima kasih atas kerjasamanya", "Hormat kami",
}

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// MonthName returns the Indonesian name of a month
func MonthName(m time.Month) string {
	return indonesianMonths[int(m)-1]
}

// FormatRupiah renders an amount with id-ID thousand separators (dots),
// without the currency prefix: 1500000 -> "1.500.000"
func FormatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}

// ReminderData carries everything a billing reminder renders
type ReminderData struct {
	CustomerName string
	NextMonth    string
	Year         int
	PackageName  string
	Speed        string
	TotalBill    int64
	BillingDate  int
	BankName     *string
	BankAccount  *string
	BankHolder   *string
	BusinessName string
}

// ReceiptData carries everything a payment receipt renders
type ReceiptData struct {
	CustomerName  string
	NIK           *string
	Area          string
	PackageName   string
	Period        string
	Discount      int64
	TotalAmount   int64
	PaymentMethod *string
	PaidAt        string
	PaidByName    string
	ReceiptURL    string
	BusinessName  string
}

// IsolationData carries everything an isolation notice renders
type IsolationData struct {
	CustomerName string
	BankName     *string
	BankAccount  *string
	BankHolder   *string
	BusinessName string
}

// BuildReminderMessage renders the next-period billing reminder
func BuildReminderMessage(rng *rand.Rand, data ReminderData) string {
	greeting := greetings[rng.Intn(len(greetings))]
	closing := closings[rng.Intn(len(closings))]

	var b strings.Builder
	b.WriteString("🔔 *Pengingat Tagihan WiFi*\n\n")
	fmt.Fprintf(&b, "%s *%s*,\n\n", greeting, data.CustomerName)
	fmt.Fprintf(&b, "Tagihan WiFi Anda untuk *%s %d* (pra-bayar) akan jatuh tempo besok:\n\n", data.NextMonth, data.Year)
	b.WriteString("📋 *Detail Tagihan:*\n")
	fmt.Fprintf(&b, "• Paket: %s (%s)\n", data.PackageName, data.Speed)
	fmt.Fprintf(&b, "• Periode: %s %d (pra-bayar)\n", data.NextMonth, data.Year)
	fmt.Fprintf(&b, "• Nominal: Rp %s\n", FormatRupiah(data.TotalBill))
	fmt.Fprintf(&b, "• Jatuh Tempo: Tanggal %d\n", data.BillingDate)

	writeBankBlock(&b, data.BankName, data.BankAccount, data.BankHolder, &data.TotalBill)

	fmt.Fprintf(&b, "\n%s\n_%s_", closing, data.BusinessName)
	return b.String()
}

// BuildReceiptMessage renders the payment confirmation
func BuildReceiptMessage(data ReceiptData) string {
	var b strings.Builder
	b.WriteString("✅ *Nota Pembayaran WiFi*\n\n")
	fmt.Fprintf(&b, "Halo *%s*,\n\n", data.CustomerName)
	fmt.Fprintf(&b, "Pembayaran Anda telah dikonfirmasi oleh *%s*.\n\n", data.PaidByName)
	b.WriteString("📋 *Detail Pembayaran:*\n")
	fmt.Fprintf(&b, "• Nama: %s\n", data.CustomerName)
	if data.NIK != nil && *data.NIK != "" {
		fmt.Fprintf(&b, "• NIK: %s\n", *data.NIK)
	}
	if data.Area != "" {
		fmt.Fprintf(&b, "• Area: %s\n", data.Area)
	}
	if data.PackageName != "" {
		fmt.Fprintf(&b, "• Paket: %s\n", data.PackageName)
	}
	fmt.Fprintf(&b, "• Periode: %s (pra-bayar)\n", data.Period)
	if data.Discount > 0 {
		fmt.Fprintf(&b, "• Diskon: Rp %s\n", FormatRupiah(data.Discount))
	}
	fmt.Fprintf(&b, "• Total Bayar: *Rp %s*\n", FormatRupiah(data.TotalAmount))
	if data.PaymentMethod != nil && *data.PaymentMethod != "" {
		fmt.Fprintf(&b, "• Metode: %s\n", *data.PaymentMethod)
	}
	fmt.Fprintf(&b, "• Tanggal Bayar: %s\n", data.PaidAt)

	fmt.Fprintf(&b, "\n🧾 Lihat nota lengkap: %s\n", data.ReceiptURL)
	fmt.Fprintf(&b, "\nTerima kasih 🙏\n_%s_", data.BusinessName)
	return b.String()
}

// BuildIsolationMessage renders the service-suspension notice
func BuildIsolationMessage(data IsolationData) string {
	var b strings.Builder
	b.WriteString("⚠️ *Pemberitahuan Isolir*\n\n")
	fmt.Fprintf(&b, "Halo *%s*,\n\n", data.CustomerName)
	b.WriteString("Layanan WiFi Anda telah di-*isolir* karena tunggakan pembayaran.\n\n")
	b.WriteString("Silakan segera lakukan pembayaran untuk mengaktifkan kembali layanan Anda.\n")

	writeBankBlock(&b, data.BankName, data.BankAccount, data.BankHolder, nil)

	fmt.Fprintf(&b, "\nHubungi kami jika ada pertanyaan.\n_%s_", data.BusinessName)
	return b.String()
}

func writeBankBlock(b *strings.Builder, bankName, bankAccount, bankHolder *string, amount *int64) {
	if bankName == nil || *bankName == "" || bankAccount == nil || *bankAccount == "" {
		return
	}
	b.WriteString("\n💳 *Pembayaran via Transfer:*\n")
	fmt.Fprintf(b, "Bank: %s\n", *bankName)
	fmt.Fprintf(b, "No. Rek: %s\n", *bankAccount)
	if bankHolder != nil && *bankHolder != "" {
		fmt.Fprintf(b, "A/N: %s\n", *bankHolder)
	}
	if amount != nil {
		fmt.Fprintf(b, "Nominal: Rp %s\n", FormatRupiah(*amount))
	}
}
