package bot

import (
	"fmt"
	"strings"

	"bot-payout/internal/journal"
	"bot-payout/internal/provider"
)

const helpText = `Perintah yang tersedia:
/channels - daftar bank & e-wallet tujuan
/cekrek - cek nama pemilik rekening
/transfer - kirim dana ke rekening / e-wallet
/deposit - isi saldo
/status <id> - cek status transaksi
/history - riwayat transaksi terakhir
/settings - lihat / ubah pengaturan
/stats - statistik sistem
/cancel - batalkan wizard yang berjalan`

func formatRupiah(amount int64) string {
	return fmt.Sprintf("Rp%d", amount)
}

func formatChannels(channels []provider.Channel) string {
	if len(channels) == 0 {
		return "Belum ada channel tujuan yang tersedia."
	}

	grouped := map[string][]provider.Channel{}
	order := []string{}
	for _, ch := range channels {
		kind := strings.TrimSpace(strings.ToLower(ch.Type))
		if kind == "" {
			kind = "lainnya"
		}
		if _, ok := grouped[kind]; !ok {
			order = append(order, kind)
		}
		grouped[kind] = append(grouped[kind], ch)
	}

	var builder strings.Builder
	builder.WriteString("Channel tujuan yang tersedia:\n")
	for _, kind := range order {
		builder.WriteString(strings.ToUpper(kind))
		builder.WriteString(":\n")
		for _, ch := range grouped[kind] {
			builder.WriteString(fmt.Sprintf("  - %s (%s)\n", ch.Name, ch.Code))
		}
	}
	return strings.TrimSpace(builder.String())
}

func formatCheckResult(res *provider.CheckAccountResponse) string {
	var builder strings.Builder
	builder.WriteString("Hasil cek rekening:\n")
	builder.WriteString(fmt.Sprintf("Bank: %s\n", res.BankCode))
	builder.WriteString(fmt.Sprintf("Nomor: %s\n", res.AccountNo))
	if res.OwnerName != "" {
		builder.WriteString(fmt.Sprintf("Pemilik: %s\n", res.OwnerName))
	}
	builder.WriteString(fmt.Sprintf("Status: %s", res.Status))
	return builder.String()
}

func formatTransferSummary(conf Confirmation) string {
	var builder strings.Builder
	builder.WriteString("Konfirmasi transfer:\n")
	builder.WriteString(fmt.Sprintf("Bank: %s\n", conf.BankCode))
	builder.WriteString(fmt.Sprintf("Nomor: %s\n", conf.AccountNo))
	builder.WriteString(fmt.Sprintf("Penerima: %s\n", conf.AccountName))
	builder.WriteString(fmt.Sprintf("Nominal: %s\n", formatRupiah(conf.Amount)))
	builder.WriteString(fmt.Sprintf("Biaya: %s\n", formatRupiah(conf.Fee)))
	builder.WriteString(fmt.Sprintf("Total: %s\n", formatRupiah(conf.Total)))
	builder.WriteString(fmt.Sprintf("Ref: %s", conf.RefID))
	return builder.String()
}

func formatDepositSummary(conf Confirmation) string {
	var builder strings.Builder
	builder.WriteString("Konfirmasi deposit:\n")
	builder.WriteString(fmt.Sprintf("Nominal: %s\n", formatRupiah(conf.Amount)))
	builder.WriteString(fmt.Sprintf("Biaya: %s\n", formatRupiah(conf.Fee)))
	builder.WriteString(fmt.Sprintf("Saldo masuk: %s\n", formatRupiah(conf.Amount-conf.Fee)))
	builder.WriteString(fmt.Sprintf("Ref: %s", conf.RefID))
	return builder.String()
}

func formatRecord(rec journal.Record) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("[%s] %s\n", strings.ToUpper(rec.Status), rec.RefID))
	builder.WriteString(fmt.Sprintf("Jenis: %s\n", rec.Kind))
	if rec.BankCode != "" {
		builder.WriteString(fmt.Sprintf("Tujuan: %s %s", rec.BankCode, rec.AccountNo))
		if rec.AccountName != "" {
			builder.WriteString(fmt.Sprintf(" (%s)", rec.AccountName))
		}
		builder.WriteString("\n")
	}
	builder.WriteString(fmt.Sprintf("Nominal: %s\n", formatRupiah(rec.Amount)))
	if rec.Fee > 0 {
		builder.WriteString(fmt.Sprintf("Biaya: %s\n", formatRupiah(rec.Fee)))
	}
	if rec.Note != "" {
		builder.WriteString(fmt.Sprintf("Catatan: %s\n", rec.Note))
	}
	builder.WriteString(fmt.Sprintf("Dibuat: %s", rec.CreatedAt.Format("2006-01-02 15:04:05")))
	return builder.String()
}

func formatHistory(records []journal.Record) string {
	if len(records) == 0 {
		return "Belum ada transaksi."
	}
	var builder strings.Builder
	builder.WriteString("Riwayat transaksi terakhir:\n")
	for _, rec := range records {
		builder.WriteString(fmt.Sprintf("- %s | %s | %s | %s\n",
			rec.CreatedAt.Format("02/01 15:04"), rec.RefID, formatRupiah(rec.Amount), rec.Status))
	}
	return strings.TrimSpace(builder.String())
}

func formatStats(stats journal.Stats) string {
	var builder strings.Builder
	builder.WriteString("Statistik sistem:\n")
	builder.WriteString(fmt.Sprintf("Total permintaan: %d\n", stats.Counters.TotalRequests))
	builder.WriteString(fmt.Sprintf("Gagal: %d\n", stats.Counters.FailedRequests))
	builder.WriteString(fmt.Sprintf("Transfer sukses: %d\n", stats.Counters.SuccessfulTransfers))
	builder.WriteString(fmt.Sprintf("Deposit sukses: %d\n", stats.Counters.SuccessfulDeposits))
	builder.WriteString(fmt.Sprintf("Total volume: %s\n", formatRupiah(stats.Counters.TotalVolume)))
	builder.WriteString(fmt.Sprintf("Total catatan: %d (pending %d)\n", stats.TotalRecords, stats.Pending))
	builder.WriteString(fmt.Sprintf("Terakhir mulai: %s", stats.Counters.LastStartup.Format("2006-01-02 15:04:05")))
	return builder.String()
}

func formatSettings(settings journal.Settings) string {
	var builder strings.Builder
	builder.WriteString("Pengaturan:\n")
	builder.WriteString(fmt.Sprintf("min_deposit: %d\n", settings.MinDeposit))
	builder.WriteString(fmt.Sprintf("max_deposit: %d\n", settings.MaxDeposit))
	builder.WriteString(fmt.Sprintf("fee_percent: %.2f\n", settings.FeePercent))
	builder.WriteString("Ubah dengan: /settings set <kunci> <nilai>")
	return builder.String()
}
