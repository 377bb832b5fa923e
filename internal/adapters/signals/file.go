package signals

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File reads entry proposals from a YAML file written by an external
// strategy process. It implements ports.SignalSource.
//
//	proposals:
//	  - id: sol-breakout-1
//	    at: 2026-03-02T10:05:00Z   # optional; not handed out before this time
//	    symbol: SOL
//	    tier: foundation
//	    price: 150.30              # optional; the runner fills in the last quote
//	    win_rate: 0.55
//	    avg_win: 120
//	    avg_loss: 60
//	    trades: 40
//	    confidence: 0.8            # required, 0..1
//	    strategy: breakout
//
// The file is re-read when its modification time changes. Each id is handed
// out at most once per process.
type File struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	modTime time.Time
	pending []entry
	seen    map[string]bool
}

type entry struct {
	id       string
	at       time.Time
	proposal domain.Proposal
}

type fileDoc struct {
	Proposals []proposalDTO `yaml:"proposals"`
}

type proposalDTO struct {
	ID         string `yaml:"id"`
	At         string `yaml:"at"`
	Symbol     string `yaml:"symbol"`
	Tier       string `yaml:"tier"`
	Price      string `yaml:"price"`
	WinRate    string `yaml:"win_rate"`
	AvgWin     string `yaml:"avg_win"`
	AvgLoss    string `yaml:"avg_loss"`
	Trades     int    `yaml:"trades"`
	Confidence string `yaml:"confidence"`
	Strategy   string `yaml:"strategy"`
}

// NewFile creates a source for path. now decides when scheduled proposals
// become due; nil means time.Now.
func NewFile(path string, now func() time.Time) *File {
	if now == nil {
		now = time.Now
	}
	return &File{path: path, now: now, seen: make(map[string]bool)}
}

// Proposals returns the due proposals not handed out before. A missing
// file yields no proposals.
func (f *File) Proposals(_ context.Context) ([]domain.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.reloadIfChanged(); err != nil {
		return nil, fmt.Errorf("signals.Proposals: %w", err)
	}

	now := f.now()
	var out []domain.Proposal
	rest := f.pending[:0]
	for _, e := range f.pending {
		if !e.at.IsZero() && e.at.After(now) {
			rest = append(rest, e)
			continue
		}
		f.seen[e.id] = true
		out = append(out, e.proposal)
	}
	f.pending = rest
	return out, nil
}

func (f *File) reloadIfChanged() error {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.ModTime().Equal(f.modTime) {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	entries, err := parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}

	f.modTime = info.ModTime()
	f.pending = f.pending[:0]
	for _, e := range entries {
		if f.seen[e.id] {
			continue
		}
		f.pending = append(f.pending, e)
	}
	slog.Debug("signals: file reloaded", "path", f.path, "proposals", len(entries), "pending", len(f.pending))
	return nil
}

// parse decodes a proposals document. Entries without an id get one from
// their position in the file.
func parse(data []byte) ([]entry, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	out := make([]entry, 0, len(doc.Proposals))
	ids := make(map[string]bool, len(doc.Proposals))
	for i, p := range doc.Proposals {
		e, err := p.toEntry()
		if err != nil {
			return nil, fmt.Errorf("proposal %d: %w", i, err)
		}
		if e.id == "" {
			e.id = e.proposal.Symbol + "#" + strconv.Itoa(i)
		}
		if ids[e.id] {
			return nil, fmt.Errorf("proposal %d: duplicate id %q", i, e.id)
		}
		ids[e.id] = true
		out = append(out, e)
	}
	return out, nil
}

func (p proposalDTO) toEntry() (entry, error) {
	var e entry
	e.id = strings.TrimSpace(p.ID)

	if p.At != "" {
		at, err := time.Parse(time.RFC3339, p.At)
		if err != nil {
			return e, fmt.Errorf("at: %w", err)
		}
		e.at = at.UTC()
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return e, fmt.Errorf("symbol is required")
	}
	tier, err := domain.ParseTier(p.Tier)
	if err != nil {
		return e, err
	}
	// Sizing scales by confidence, so a missing value would size every
	// entry to zero.
	if strings.TrimSpace(p.Confidence) == "" {
		return e, fmt.Errorf("%s: confidence is required", symbol)
	}

	var pe parseErr
	e.proposal = domain.Proposal{
		Symbol:      symbol,
		Tier:        tier,
		MarketPrice: pe.dec("price", p.Price),
		WinRate:     pe.dec("win_rate", p.WinRate),
		AvgWin:      pe.dec("avg_win", p.AvgWin),
		AvgLoss:     pe.dec("avg_loss", p.AvgLoss),
		TradeCount:  p.Trades,
		Confidence:  pe.dec("confidence", p.Confidence),
		StrategyTag: p.Strategy,
	}
	return e, pe.err
}

type parseErr struct{ err error }

func (p *parseErr) dec(field, s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return v
}
