package seat

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"seat-console/model"
)

// Totals is the running checkout amount and the seat id list the checkout
// form submits.
type Totals struct {
	Amount    float64
	Formatted string
	SeatIDs   string
	SeatCount int
}

// NewFormatter returns a whole-unit currency formatter using locale digit
// grouping, e.g. "185.000 ₫" for vi.
func NewFormatter(locale string, symbol string) func(float64) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	symbol = strings.TrimSpace(symbol)
	return func(amount float64) string {
		n := int64(math.Round(amount))
		if symbol == "" {
			return printer.Sprintf("%d", n)
		}
		return printer.Sprintf("%d %s", n, symbol)
	}
}

func computeTotals(selected []model.Seat, combos []model.ComboLineItem) float64 {
	var total float64
	for _, s := range selected {
		total += finite(s.Price)
	}
	for _, line := range combos {
		total += parseAmount(line.Quantity) * parseAmount(line.Price)
	}
	return total
}

// parseAmount reads form input as a number, treating anything unparsable as zero.
func parseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return finite(v)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
