package report

import (
	"fmt"
	"io"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	tradesSheet   = "Trades"
	equitySheet   = "Equity"
	breakersSheet = "Breakers"

	timeFormat = "2006-01-02 15:04:05"
)

// Journal is what the workbook is built from.
type Journal struct {
	Metrics  domain.Metrics
	HasStats bool // false when there were no closed trades
	Trades   []domain.ClosedTrade
	Equity   []domain.EquityPoint
	Events   []domain.BreakerEvent
}

// Workbook renders a journal as an .xlsx file with one sheet per concern.
type Workbook struct {
	fx   *excelize.File
	head int
	pos  int
	neg  int
}

// NewWorkbook lays out every sheet for j.
func NewWorkbook(j Journal) (*Workbook, error) {
	fx := excelize.NewFile()
	w := &Workbook{fx: fx}
	if err := w.styles(); err != nil {
		fx.Close()
		return nil, fmt.Errorf("report.NewWorkbook: styles: %w", err)
	}

	if err := fx.SetSheetName(fx.GetSheetName(0), summarySheet); err != nil {
		fx.Close()
		return nil, fmt.Errorf("report.NewWorkbook: %w", err)
	}
	for _, s := range []string{tradesSheet, equitySheet, breakersSheet} {
		if _, err := fx.NewSheet(s); err != nil {
			fx.Close()
			return nil, fmt.Errorf("report.NewWorkbook: sheet %s: %w", s, err)
		}
	}

	steps := []func(Journal) error{w.summary, w.trades, w.equity, w.breakers}
	for _, step := range steps {
		if err := step(j); err != nil {
			fx.Close()
			return nil, fmt.Errorf("report.NewWorkbook: %w", err)
		}
	}
	return w, nil
}

// SaveAs writes the workbook to path.
func (w *Workbook) SaveAs(path string) error {
	if err := w.fx.SaveAs(path); err != nil {
		return fmt.Errorf("report.SaveAs: %w", err)
	}
	return nil
}

// WriteTo writes the workbook to out.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.fx.WriteTo(out)
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.fx.Close()
}

func (w *Workbook) styles() error {
	var err error
	if w.head, err = w.fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
	}); err != nil {
		return err
	}
	if w.pos, err = w.fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "006100"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
	}); err != nil {
		return err
	}
	w.neg, err = w.fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "9C0006"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
	})
	return err
}

func (w *Workbook) header(sheet string, cols ...string) error {
	for i, h := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := w.fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := w.fx.SetCellStyle(sheet, "A1", last, w.head); err != nil {
		return err
	}
	return w.fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (w *Workbook) row(sheet string, n int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	return w.fx.SetSheetRow(sheet, cell, &values)
}

func (w *Workbook) summary(j Journal) error {
	if err := w.header(summarySheet, "Metric", "Value"); err != nil {
		return err
	}
	if !j.HasStats {
		return w.row(summarySheet, 2, "Closed trades", 0)
	}
	m := j.Metrics
	rows := [][]any{
		{"Closed trades", m.TotalTrades},
		{"Winning trades", m.WinningTrades},
		{"Losing trades", m.LosingTrades},
		{"Win rate", num(m.WinRate)},
		{"Average win", num(m.AvgWin)},
		{"Average loss", num(m.AvgLoss)},
		{"Gross profit", num(m.GrossProfit)},
		{"Gross loss", num(m.GrossLoss)},
		{"Profit factor", num(m.ProfitFactor)},
		{"Total PnL", num(m.TotalPnL)},
		{"Total return %", num(m.TotalReturnPct)},
		{"Max drawdown %", num(m.MaxDrawdownPct)},
		{"Sharpe (per trade)", num(m.SharpeRatio)},
		{"Total fees", num(m.TotalFees)},
		{"Runtime days", num(m.RuntimeDays)},
		{"Trades per day", num(m.TradesPerDay)},
		{"Avg holding hours", num(m.AvgHoldingHours)},
	}
	for i, r := range rows {
		if err := w.row(summarySheet, i+2, r...); err != nil {
			return err
		}
	}
	// Total PnL row
	if err := w.fx.SetCellStyle(summarySheet, "B11", "B11", w.sign(m.TotalPnL)); err != nil {
		return err
	}
	return w.fx.SetColWidth(summarySheet, "A", "A", 22)
}

func (w *Workbook) trades(j Journal) error {
	if err := w.header(tradesSheet, "ID", "Symbol", "Tier", "Entry time", "Exit time", "Entry price",
		"Exit price", "Quantity", "Fees", "PnL", "PnL %", "Exit reason", "Strategy", "Confidence"); err != nil {
		return err
	}
	for i, t := range j.Trades {
		n := i + 2
		if err := w.row(tradesSheet, n,
			t.ID, t.Symbol, string(t.Tier),
			t.EntryTime.UTC().Format(timeFormat), t.ExitTime.UTC().Format(timeFormat),
			num(t.EntryPrice), num(t.ExitPrice), num(t.Quantity), num(t.TotalFees),
			num(t.PnL), num(t.PnLPct), string(t.ExitReason), t.StrategyTag, num(t.Confidence),
		); err != nil {
			return err
		}
		cell := fmt.Sprintf("J%d", n)
		if err := w.fx.SetCellStyle(tradesSheet, cell, cell, w.sign(t.PnL)); err != nil {
			return err
		}
	}
	return w.fx.SetColWidth(tradesSheet, "A", "A", 38)
}

func (w *Workbook) equity(j Journal) error {
	if err := w.header(equitySheet, "Time", "Cash", "Equity", "Open positions"); err != nil {
		return err
	}
	for i, p := range j.Equity {
		if err := w.row(equitySheet, i+2, p.At.UTC().Format(timeFormat), num(p.Cash), num(p.Equity), p.OpenPositions); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) breakers(j Journal) error {
	if err := w.header(breakersSheet, "Seq", "Time", "Breaker", "Symbol", "Transition", "Threshold", "Actual", "Message"); err != nil {
		return err
	}
	for i, e := range j.Events {
		transition := "cleared"
		if e.Tripped {
			transition = "tripped"
		}
		if err := w.row(breakersSheet, i+2, e.Seq, e.At.UTC().Format(timeFormat), e.Kind.String(), e.Symbol,
			transition, num(e.Threshold), num(e.Actual), e.Message); err != nil {
			return err
		}
	}
	return w.fx.SetColWidth(breakersSheet, "H", "H", 60)
}

func (w *Workbook) sign(v decimal.Decimal) int {
	if v.IsNegative() {
		return w.neg
	}
	return w.pos
}

// num exports a decimal as a spreadsheet number.
func num(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
