package businessflow

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/fibernode/backoffice/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRupiah(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		expected string
	}{
		{name: "zero", amount: 0, expected: "0"},
		{name: "under a thousand", amount: 999, expected: "999"},
		{name: "exactly a thousand", amount: 1000, expected: "1.000"},
		{name: "typical bill", amount: 150000, expected: "150.000"},
		{name: "millions", amount: 1500000, expected: "1.500.000"},
		{name: "uneven grouping", amount: 12345678, expected: "12.345.678"},
		{name: "negative", amount: -250000, expected: "-250.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRupiah(tt.amount))
		})
	}
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "Januari", MonthName(time.January))
	assert.Equal(t, "Agustus", MonthName(time.August))
	assert.Equal(t, "Desember", MonthName(time.December))
}

func TestBuildReminderMessage(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	data := ReminderData{
		CustomerName: "Budi Santoso",
		NextMonth:    "September",
		Year:         2026,
		PackageName:  "Paket Home",
		Speed:        "20 Mbps",
		TotalBill:    150000,
		BillingDate:  15,
		BankName:     utils.ToPtr("BCA"),
		BankAccount:  utils.ToPtr("1234567890"),
		BankHolder:   utils.ToPtr("Agus"),
		BusinessName: "Maju Net",
	}

	msg := BuildReminderMessage(rng, data)

	assert.True(t, strings.HasPrefix(msg, "🔔 *Pengingat Tagihan WiFi*"))
	assert.Contains(t, msg, "*Budi Santoso*")
	assert.Contains(t, msg, "*September 2026* (pra-bayar)")
	assert.Contains(t, msg, "• Paket: Paket Home (20 Mbps)")
	assert.Contains(t, msg, "• Nominal: Rp 150.000")
	assert.Contains(t, msg, "• Jatuh Tempo: Tanggal 15")
	assert.Contains(t, msg, "Bank: BCA")
	assert.Contains(t, msg, "No. Rek: 1234567890")
	assert.Contains(t, msg, "A/N: Agus")
	assert.True(t, strings.HasSuffix(msg, "_Maju Net_"))

	// Greeting and closing come from the rotation pools
	var greeted bool
	for _, g := range greetings {
		if strings.Contains(msg, g+" *Budi Santoso*") {
			greeted = true
			break
		}
	}
	assert.True(t, greeted, "message should open with a known greeting")
}

func TestBuildReminderMessageWithoutBankDetails(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	data := ReminderData{
		CustomerName: "Siti",
		NextMonth:    "Oktober",
		Year:         2026,
		PackageName:  "Paket Lite",
		Speed:        "10 Mbps",
		TotalBill:    100000,
		BillingDate:  1,
		BusinessName: "Desa Net",
	}

	msg := BuildReminderMessage(rng, data)
	assert.NotContains(t, msg, "Pembayaran via Transfer")
	assert.NotContains(t, msg, "Bank:")
}

func TestBuildReceiptMessage(t *testing.T) {
	data := ReceiptData{
		CustomerName:  "Budi Santoso",
		NIK:           utils.ToPtr("3201234567890001"),
		Area:          "Blok C",
		PackageName:   "Paket Home",
		Period:        "September 2026",
		Discount:      10000,
		TotalAmount:   140000,
		PaymentMethod: utils.ToPtr("transfer"),
		PaidAt:        "30-08-2026",
		PaidByName:    "Admin",
		ReceiptURL:    "https://billing.example.com/receipt/abc123",
		BusinessName:  "Maju Net",
	}

	msg := BuildReceiptMessage(data)

	assert.True(t, strings.HasPrefix(msg, "✅ *Nota Pembayaran WiFi*"))
	assert.Contains(t, msg, "dikonfirmasi oleh *Admin*")
	assert.Contains(t, msg, "• NIK: 3201234567890001")
	assert.Contains(t, msg, "• Area: Blok C")
	assert.Contains(t, msg, "• Diskon: Rp 10.000")
	assert.Contains(t, msg, "• Total Bayar: *Rp 140.000*")
	assert.Contains(t, msg, "• Metode: transfer")
	assert.Contains(t, msg, "• Tanggal Bayar: 30-08-2026")
	assert.Contains(t, msg, "https://billing.example.com/receipt/abc123")
}

func TestBuildReceiptMessageOmitsEmptyOptionalLines(t *testing.T) {
	data := ReceiptData{
		CustomerName: "Siti",
		Period:       "Oktober 2026",
		TotalAmount:  100000,
		PaidAt:       "01-09-2026",
		PaidByName:   "Admin",
		ReceiptURL:   "https://billing.example.com/receipt/def456",
		BusinessName: "Desa Net",
	}

	msg := BuildReceiptMessage(data)
	assert.NotContains(t, msg, "• NIK:")
	assert.NotContains(t, msg, "• Area:")
	assert.NotContains(t, msg, "• Diskon:")
	assert.NotContains(t, msg, "• Metode:")
}

func TestBuildIsolationMessage(t *testing.T) {
	data := IsolationData{
		CustomerName: "Budi Santoso",
		BankName:     utils.ToPtr("BRI"),
		BankAccount:  utils.ToPtr("987654321"),
		BankHolder:   utils.ToPtr("Agus"),
		BusinessName: "Maju Net",
	}

	msg := BuildIsolationMessage(data)

	require.True(t, strings.HasPrefix(msg, "⚠️ *Pemberitahuan Isolir*"))
	assert.Contains(t, msg, "di-*isolir*")
	assert.Contains(t, msg, "Bank: BRI")
	// Isolation notice never names an amount; the debt may span periods
	assert.NotContains(t, msg, "Nominal:")
	assert.True(t, strings.HasSuffix(msg, "_Maju Net_"))
}
