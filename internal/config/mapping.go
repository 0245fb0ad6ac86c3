package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// MappingEntry routes one master symbol to its slave-side counterpart.
// LotMultiplier scales the master volume to the slave volume and is kept
// as a decimal so repeated scaling never accumulates float drift.
type MappingEntry struct {
	MasterSymbol  string
	SlaveSymbol   string
	LotMultiplier decimal.Decimal
}

// SymbolMap is the symbol-mapping table, keyed by master symbol but
// preserving file order for snapshot output.
type SymbolMap struct {
	entries []MappingEntry
	index   map[string]int
}

// Lookup returns the mapping for a master symbol.
func (m *SymbolMap) Lookup(masterSymbol string) (MappingEntry, bool) {
	i, ok := m.index[masterSymbol]
	if !ok {
		return MappingEntry{}, false
	}
	return m.entries[i], true
}

// Entries returns the mapping rows in file order.
func (m *SymbolMap) Entries() []MappingEntry {
	return m.entries
}

// Len returns the number of mapping rows.
func (m *SymbolMap) Len() int { return len(m.entries) }

// LoadSymbolMap reads the symbol-mapping table. The header must carry
// master_symbol, slave_symbol and slave_lot columns (any order); a missing
// column is fatal, as is a non-positive lot multiplier.
func LoadSymbolMap(path string) (*SymbolMap, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the config file
	if err != nil {
		return nil, fmt.Errorf("opening symbol map: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"master_symbol", "slave_symbol", "slave_lot"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%s must contain 'master_symbol', 'slave_symbol', and 'slave_lot' columns", path)
		}
	}

	sm := &SymbolMap{index: make(map[string]int)}
	for n, row := range rows[1:] {
		line := n + 2 // 1-based, counting the header
		master := strings.TrimSpace(row[cols["master_symbol"]])
		slave := strings.TrimSpace(row[cols["slave_symbol"]])
		if master == "" || slave == "" {
			return nil, fmt.Errorf("%s line %d: empty symbol", path, line)
		}
		lot, err := decimal.NewFromString(strings.TrimSpace(row[cols["slave_lot"]]))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: slave_lot: %w", path, line, err)
		}
		if !lot.IsPositive() {
			return nil, fmt.Errorf("%s line %d: slave_lot must be positive, got %s", path, line, lot)
		}
		if _, dup := sm.index[master]; dup {
			return nil, fmt.Errorf("%s line %d: duplicate master_symbol %q", path, line, master)
		}
		sm.index[master] = len(sm.entries)
		sm.entries = append(sm.entries, MappingEntry{
			MasterSymbol:  master,
			SlaveSymbol:   slave,
			LotMultiplier: lot,
		})
	}

	if len(sm.entries) == 0 {
		return nil, fmt.Errorf("%s has no mapping rows", path)
	}
	return sm, nil
}
