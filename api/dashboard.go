package api

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var dashboardTemplate = template.Must(
	template.New("dashboard.html").Funcs(template.FuncMap{
		"coins":      formatCoins,
		"signed":     formatSigned,
		"cap":        formatCap,
		"timestamp":  formatTimestamp,
		"completion": formatCompletion,
		"important":  isImportant,
		"isPositive": func(d decimal.Decimal) bool { return d.IsPositive() },
		"isNegative": func(d decimal.Decimal) bool { return d.IsNegative() },
	}).ParseFS(templateFS, "templates/dashboard.html"),
)

type dashboardView struct {
	Ledger  LedgerDTO
	Members []MemberDTO
	History []ledger.HistoryItem
	Cursor  ledger.Timestamp
	Checked ledger.Timestamp
}

// Dashboard renders the HTML overview.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.Manager.Snapshot()
	view := dashboardView{
		Ledger:  toLedgerDTO(snap),
		Members: toMemberDTOs(snap, h.Now()),
		History: ledger.History(snap.Journal, defaultHistoryLimit),
		Cursor:  snap.Cursor,
		Checked: snap.LastCheck,
	}

	var buf strings.Builder
	if err := h.dashboard.Execute(&buf, view); err != nil {
		h.logger.Error().Err(err).Msg("dashboard render failed")
		writeError(w, http.StatusInternalServerError, "failed to render dashboard", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(buf.String()))
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatCoins renders an amount with thousands separators and one decimal,
// e.g. 1250000.5 -> "1,250,000.5".
func formatCoins(d decimal.Decimal) string {
	s := d.Abs().StringFixed(1)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// formatSigned prefixes positive amounts with "+".
func formatSigned(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + formatCoins(d)
	}
	return formatCoins(d)
}

func formatCap(upgradeCap *int64) string {
	if upgradeCap == nil {
		return "unknown"
	}
	return formatCoins(decimal.NewFromInt(*upgradeCap))
}

// formatCompletion renders how full the bank is relative to its capacity.
func formatCompletion(balance decimal.Decimal, upgradeCap *int64) string {
	if upgradeCap == nil || *upgradeCap <= 0 {
		return "unknown"
	}
	ratio := balance.Div(decimal.NewFromInt(*upgradeCap)).Mul(decimal.NewFromInt(100))
	return ratio.StringFixed(2) + "%"
}

// importantAmount is the size from which history rows are highlighted.
var importantAmount = decimal.NewFromInt(5_000_000)

func isImportant(d decimal.Decimal) bool {
	return d.Abs().GreaterThanOrEqual(importantAmount)
}

func formatTimestamp(ts ledger.Timestamp) string {
	if ts.IsZero() {
		return "never"
	}
	return ts.Time().UTC().Format(time.DateTime) + " UTC"
}
