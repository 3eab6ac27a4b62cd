package review

import (
	"github.com/FACorreiaa/kontoexport/pkg/money"
)

// ColumnSummary aggregates one numeric column. Flow columns are summed;
// balance columns report the last readable value.
type ColumnSummary struct {
	Header   string
	Kind     ColumnKind
	Outgoing bool
	Value    *money.Money
	Parsed   int
	Skipped  int // non-empty cells that are not amounts
}

// Summary describes the grid for the review screen.
type Summary struct {
	Rows    int
	Columns []ColumnSummary
	// Net is incoming minus outgoing money over all flow columns. Outgoing
	// amounts count as outflow whatever sign the statement prints. Nil when
	// the grid has no flow column.
	Net *money.Money
}

// Summary computes per-column totals in EUR.
func (g *Grid) Summary() Summary {
	t := g.Snapshot()
	s := Summary{Rows: len(t.Rows)}

	for _, h := range t.Headers {
		kind := Classify(h)
		if kind == ColumnText {
			continue
		}

		cs := ColumnSummary{Header: h, Kind: kind, Value: money.Zero(money.EUR)}
		if kind == ColumnFlow {
			cs.Outgoing = IsOutgoingColumn(h)
			if s.Net == nil {
				s.Net = money.Zero(money.EUR)
			}
		}
		for _, row := range t.Rows {
			cell := row[h]
			if cell == "" {
				continue
			}
			amount, err := money.Parse(cell, money.EUR)
			if err != nil {
				cs.Skipped++
				continue
			}
			cs.Parsed++
			if kind == ColumnBalance {
				cs.Value = amount
				continue
			}
			if sum, err := cs.Value.Add(amount); err == nil {
				cs.Value = sum
			}
			flow := amount
			if cs.Outgoing && !amount.IsNegative() {
				flow = amount.Negate()
			}
			if net, err := s.Net.Add(flow); err == nil {
				s.Net = net
			}
		}
		s.Columns = append(s.Columns, cs)
	}

	return s
}
