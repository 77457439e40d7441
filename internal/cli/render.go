package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/app"
	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/orchestrator"
	"github.com/vadiminshakov/tradeledger/internal/services/pricesync"
	"github.com/vadiminshakov/tradeledger/internal/storage/intents"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#E8A317", Dark: "#FFC94D"}
	danger    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F6D"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().Foreground(subtle)
	goodStyle  = lipgloss.NewStyle().Foreground(special).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(warning).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(highlight).
			Padding(0, 1)
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(highlight)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// box renders a titled block of label/value lines.
func box(title string, kv ...string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", kv[i])))
		b.WriteString(" ")
		b.WriteString(kv[i+1])
	}
	return boxStyle.Render(b.String())
}

func provenance(p domain.Provenance) string {
	switch p {
	case domain.ProvenanceLive:
		return goodStyle.Render(p.String())
	case domain.ProvenanceCached:
		return warnStyle.Render(p.String())
	default:
		return badStyle.Render(p.String())
	}
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return goodStyle.Render("+" + d.StringFixed(2))
	}
	if d.IsNegative() {
		return badStyle.Render(d.StringFixed(2))
	}
	return d.StringFixed(2)
}

func renderQuotes(quotes []domain.PriceQuote) string {
	t := newTable("SYMBOL", "PRICE", "SOURCE", "AS OF")
	for _, q := range quotes {
		t.Row(q.Symbol, q.Price.String(), provenance(q.Provenance), q.Timestamp.UTC().Format(timeLayout))
	}
	return t.String()
}

func renderStats(s domain.Stats24h) string {
	return box(s.Symbol+" 24h",
		"last", s.LastPrice.String(),
		"change", s.PriceChange.String()+" ("+signed(s.PriceChangePercent)+"%)",
		"high", s.High.String(),
		"low", s.Low.String(),
		"volume", s.Volume.String(),
		"quote vol", s.QuoteVolume.String(),
		"source", provenance(s.Provenance),
	)
}

func renderOrder(side domain.TradeType, res *domain.OrderResult) string {
	kv := []string{"intent", res.IntentID, "route", string(res.Route)}
	if res.Entry != nil {
		if res.Entry.ID != "" {
			kv = append(kv, "entry", res.Entry.ID)
		}
		kv = append(kv,
			"amount", res.Entry.Amount.String()+" "+res.Entry.Symbol,
			"price", res.Entry.Price.String(),
		)
	}
	if res.Chain != nil {
		kv = append(kv,
			"tx", res.Chain.TxHash.Hex(),
			"block", fmt.Sprint(res.Chain.Block),
			"chain id", fmt.Sprint(res.Chain.TxID),
			"settled", res.Chain.Settled.String(),
		)
	}
	if res.Alert != nil {
		title := strings.ToUpper(side.String()) + " " + badStyle.Render("not journaled")
		return box(title, kv...) + "\n" + badStyle.Render("CONSISTENCY ALERT: ") + res.Alert.Error()
	}
	return box(strings.ToUpper(side.String())+" "+goodStyle.Render("settled"), kv...)
}

func renderBalance(account domain.Account, symbol string, amount decimal.Decimal) string {
	return box(account.UserID, "asset", symbol, "balance", amount.String())
}

func renderPortfolio(p domain.Portfolio) string {
	t := newTable("ASSET", "AMOUNT", "PRICE", "VALUE", "SHARE %", "SOURCE")
	for _, h := range p.Holdings {
		t.Row(h.Symbol, h.Amount.String(), h.Price.String(), h.Value.StringFixed(2),
			h.Percentage.StringFixed(2), provenance(h.Provenance))
	}
	return headerStyle.Render(p.UserID+" portfolio") + "\n" + t.String() + "\n" +
		labelStyle.Render("total ") + p.TotalValue.StringFixed(2)
}

func renderHistory(items []domain.HistoryItem) string {
	if len(items) == 0 {
		return labelStyle.Render("no transactions")
	}
	t := newTable("ID", "TIME", "SIDE", "ASSET", "AMOUNT", "PRICE", "NOW", "CHANGE %", "CHAIN")
	for _, it := range items {
		e := it.Entry
		t.Row(e.ID, e.CreatedAt.UTC().Format(timeLayout), e.Type.String(), e.Symbol, e.Amount.String(),
			e.Price.String(), it.CurrentPrice.String(), signed(it.ChangePercent), chainColumn(it))
	}
	return t.String()
}

func renderHistoryItem(it domain.HistoryItem) string {
	e := it.Entry
	kv := []string{
		"id", e.ID,
		"time", e.CreatedAt.UTC().Format(timeLayout),
		"side", e.Type.String(),
		"asset", e.Symbol,
		"amount", e.Amount.String(),
		"price", e.Price.String(),
		"now", it.CurrentPrice.String() + " " + provenance(it.Provenance),
		"change", signed(it.ChangePercent) + "%",
	}
	if e.HasChainRef() {
		kv = append(kv, "tx", e.TxRef)
	}
	if it.OnChain != nil {
		kv = append(kv,
			"chain id", fmt.Sprint(it.OnChain.ID),
			"chain px", it.OnChain.Price.String(),
			"complete", fmt.Sprint(it.OnChain.Completed),
		)
	}
	return box("transaction", kv...)
}

func chainColumn(it domain.HistoryItem) string {
	switch {
	case it.OnChain != nil:
		return fmt.Sprintf("#%d", it.OnChain.ID)
	case it.Entry.HasChainRef():
		return warnStyle.Render("unresolved")
	default:
		return labelStyle.Render("off-chain")
	}
}

func renderOrderStatus(st orchestrator.OrderStatus) string {
	in := st.Intent
	kv := []string{
		"user", in.UserID,
		"side", in.Side.String(),
		"asset", in.Symbol,
		"amount", in.Amount.String(),
		"status", intentStatus(in.Status),
		"chain", st.Chain,
		"updated", in.UpdatedAt.UTC().Format(timeLayout),
	}
	if in.TxHash != "" {
		kv = append(kv, "tx", in.TxHash)
	}
	if in.EntryID != "" {
		kv = append(kv, "entry", in.EntryID)
	}
	if in.Error != "" {
		kv = append(kv, "error", in.Error)
	}
	return box("order "+in.ID, kv...)
}

func intentStatus(s intents.Status) string {
	switch s {
	case intents.StatusJournaled:
		return goodStyle.Render(string(s))
	case intents.StatusDiverged:
		return badStyle.Render(string(s))
	case intents.StatusFailed, intents.StatusRejected:
		return labelStyle.Render(string(s))
	default:
		return warnStyle.Render(string(s))
	}
}

func renderIntents(list []intents.Intent) string {
	if len(list) == 0 {
		return goodStyle.Render("no open orders")
	}
	t := newTable("INTENT", "USER", "SIDE", "ASSET", "AMOUNT", "STATUS", "TX", "AGE")
	now := time.Now()
	for _, in := range list {
		t.Row(in.ID, in.UserID, in.Side.String(), in.Symbol, in.Amount.String(),
			intentStatus(in.Status), shortHash(in.TxHash), now.Sub(in.CreatedAt).Truncate(time.Second).String())
	}
	return t.String()
}

func renderFindings(findings []orchestrator.Finding) string {
	if len(findings) == 0 {
		return goodStyle.Render("ledgers agree")
	}
	t := newTable("INTENT", "KIND", "USER", "ASSET", "TX", "DETAIL")
	for _, f := range findings {
		kind := string(f.Kind)
		if f.Kind == orchestrator.FindingDiverged {
			kind = badStyle.Render(kind)
		}
		t.Row(f.Intent.ID, kind, f.Intent.UserID, f.Intent.Symbol, shortHash(f.Intent.TxHash), f.Detail)
	}
	return t.String()
}

func renderListed(list []app.ListedAsset, settlement string) string {
	t := newTable("ASSET", "PRICE ("+settlement+")", "ACTIVE")
	for _, a := range list {
		active := goodStyle.Render("yes")
		if !a.Active {
			active = labelStyle.Render("no")
		}
		t.Row(a.Symbol, a.Price.String(), active)
	}
	return t.String()
}

func renderSyncReport(r pricesync.Report) string {
	var b strings.Builder
	if len(r.Updated) == 0 {
		b.WriteString(labelStyle.Render("no contract prices changed"))
	} else {
		t := newTable("ASSET", "OLD", "NEW")
		for _, u := range r.Updated {
			t.Row(u.Symbol, u.Old.String(), u.New.String())
		}
		b.WriteString(t.String())
	}
	if len(r.Unchanged) > 0 {
		b.WriteString("\n" + labelStyle.Render("unchanged ") + strings.Join(r.Unchanged, ", "))
	}
	if len(r.Skipped) > 0 {
		b.WriteString("\n" + warnStyle.Render("skipped ") + strings.Join(r.Skipped, ", "))
	}
	return b.String()
}

func renderTx(action string, hash common.Hash) string {
	return goodStyle.Render(action) + " " + labelStyle.Render("tx") + " " + hash.Hex()
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + ".." + h[len(h)-4:]
}
