// Package conversion converts values between currencies and price bases
// using yearly exchange rates and deflators.
package conversion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/climate-finance/engine/internal/domain"
)

// ErrMissingRate is returned when a rate or deflator is not in the table
var ErrMissingRate = errors.New("missing conversion rate")

type yearKey struct {
	currency string
	year     int
}

// Table holds exchange rates (units of a currency per US dollar) and price
// deflators (an index per currency and year, any base). It is safe for
// concurrent use.
type Table struct {
	mu        sync.RWMutex
	rates     map[yearKey]float64
	deflators map[yearKey]float64
}

// NewTable creates an empty table. US dollar rates default to 1.
func NewTable() *Table {
	return &Table{
		rates:     make(map[yearKey]float64),
		deflators: make(map[yearKey]float64),
	}
}

// AddRate sets the units of a currency per US dollar in a year
func (t *Table) AddRate(currency string, year int, perUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[yearKey{strings.ToUpper(currency), year}] = perUSD
}

// AddDeflator sets the price index of a currency in a year
func (t *Table) AddDeflator(currency string, year int, index float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deflators[yearKey{strings.ToUpper(currency), year}] = index
}

func (t *Table) rate(currency string, year int) (float64, error) {
	currency = strings.ToUpper(currency)
	if currency == "USD" {
		return 1, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rates[yearKey{currency, year}]
	if !ok || r <= 0 {
		return 0, fmt.Errorf("%w: exchange rate %s %d", ErrMissingRate, currency, year)
	}
	return r, nil
}

func (t *Table) deflator(currency string, year int) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.deflators[yearKey{strings.ToUpper(currency), year}]
	if !ok || d <= 0 {
		return 0, fmt.Errorf("%w: deflator %s %d", ErrMissingRate, currency, year)
	}
	return d, nil
}

// Convert expresses a value reported for a year in another currency and
// price basis. Constant prices are first brought back to the year's current
// prices in the source currency, exchanged at the year's rate, then deflated
// in the target currency.
func (t *Table) Convert(value float64, from domain.Basis, year int, to domain.Basis) (float64, error) {
	if value == 0 || sameBasis(from, to) {
		return value, nil
	}

	if from.Prices.Prices == domain.PricesConstant && from.Prices.BaseYear != year {
		base, err := t.deflator(from.Currency, from.Prices.BaseYear)
		if err != nil {
			return 0, err
		}
		current, err := t.deflator(from.Currency, year)
		if err != nil {
			return 0, err
		}
		value = value * current / base
	}

	if !strings.EqualFold(from.Currency, to.Currency) {
		fromRate, err := t.rate(from.Currency, year)
		if err != nil {
			return 0, err
		}
		toRate, err := t.rate(to.Currency, year)
		if err != nil {
			return 0, err
		}
		value = value / fromRate * toRate
	}

	if to.Prices.Prices == domain.PricesConstant && to.Prices.BaseYear != year {
		base, err := t.deflator(to.Currency, to.Prices.BaseYear)
		if err != nil {
			return 0, err
		}
		current, err := t.deflator(to.Currency, year)
		if err != nil {
			return 0, err
		}
		value = value * base / current
	}
	return value, nil
}

func sameBasis(a, b domain.Basis) bool {
	return strings.EqualFold(a.Currency, b.Currency) && normalisePrices(a.Prices) == normalisePrices(b.Prices)
}

func normalisePrices(p domain.PriceBasis) domain.PriceBasis {
	if p.Prices == "" {
		p.Prices = domain.PricesCurrent
	}
	return p
}

// LoadFile reads a conversion table from a CSV file
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversion table %s: %w", path, err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversion table %s: %w", path, err)
	}
	return t, nil
}

// Load reads rows of kind,currency,year,value where kind is "rate" or
// "deflator"
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	t := NewTable()
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		kind := strings.ToLower(strings.TrimSpace(record[0]))
		if line == 1 && kind == "kind" {
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid year %q", line, record[2])
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value %q", line, record[3])
		}

		switch kind {
		case "rate":
			t.AddRate(record[1], year, value)
		case "deflator":
			t.AddDeflator(record[1], year, value)
		default:
			return nil, fmt.Errorf("line %d: unknown kind %q", line, record[0])
		}
	}
	return t, nil
}
