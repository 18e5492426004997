package warehouse

import (
	"fmt"
	"strconv"

	"Indicium/internal/domain/models"
	"Indicium/pkg/util"
)

// cell is one value of a query result row. The REST API encodes every scalar as a string.
type cell struct{ v interface{} }

func (c cell) null() bool { return c.v == nil }

func (c cell) str() string {
	switch v := c.v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func (c cell) float() (float64, error) {
	switch v := c.v.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected %T", c.v)
	}
}

// optFloat maps null, empty and zero to nil.
func (c cell) optFloat() (*float64, error) {
	f, err := c.float()
	if err != nil || f == 0 {
		return nil, err
	}
	return &f, nil
}

func (c cell) int() (int64, error) {
	f, err := c.float()
	return int64(f), err
}

// column binds a warehouse column name to a typed Signal setter.
type column struct {
	name     string
	required bool
	set      func(s *models.Signal, c cell) error
}

func text(fn func(s *models.Signal, v string)) func(*models.Signal, cell) error {
	return func(s *models.Signal, c cell) error {
		fn(s, c.str())
		return nil
	}
}

func number(fn func(s *models.Signal, v float64)) func(*models.Signal, cell) error {
	return func(s *models.Signal, c cell) error {
		f, err := c.float()
		if err != nil {
			return err
		}
		fn(s, f)
		return nil
	}
}

func optional(fn func(s *models.Signal, v *float64)) func(*models.Signal, cell) error {
	return func(s *models.Signal, c cell) error {
		f, err := c.optFloat()
		if err != nil {
			return err
		}
		fn(s, f)
		return nil
	}
}

// signalColumns is the ordered result schema of the signals view.
var signalColumns = []column{
	{"id", true, text(func(s *models.Signal, v string) { s.ID = v })},
	{"ticker", true, text(func(s *models.Signal, v string) { s.Ticker = v })},
	{"company_name", false, text(func(s *models.Signal, v string) { s.CompanyName = v })},
	{"sector", false, text(func(s *models.Signal, v string) { s.Sector = v })},
	{"signal_type", true, text(func(s *models.Signal, v string) { s.Signal.Type = v })},
	{"signal_strength", false, number(func(s *models.Signal, v float64) { s.Signal.Strength = v })},
	{"dominant_author", false, text(func(s *models.Signal, v string) { s.Signal.DominantAuthor = v })},
	{"confidence", false, number(func(s *models.Signal, v float64) { s.Signal.Confidence = v })},
	{"price", false, number(func(s *models.Signal, v float64) { s.Price.Current = v })},
	{"change_percent", false, number(func(s *models.Signal, v float64) { s.Price.ChangePercent = v })},
	{"target_price", false, optional(func(s *models.Signal, v *float64) { s.Price.Target = v })},
	{"stop_loss", false, optional(func(s *models.Signal, v *float64) { s.Price.StopLoss = v })},
	{"trinity_score_lynch", false, number(func(s *models.Signal, v float64) { s.Scores.Lynch = v })},
	{"trinity_score_oneil", false, number(func(s *models.Signal, v float64) { s.Scores.ONeil = v })},
	{"trinity_score_graham", false, number(func(s *models.Signal, v float64) { s.Scores.Graham = v })},
	{"trinity_score_avg", false, func(s *models.Signal, c cell) error {
		if c.null() {
			s.Scores.Average = util.MeanRounded([]float64{s.Scores.Lynch, s.Scores.ONeil, s.Scores.Graham}, 1)
			return nil
		}
		f, err := c.float()
		s.Scores.Average = f
		return err
	}},
	{"risk_profile", false, text(func(s *models.Signal, v string) { s.RiskProfile = v })},
	{"market_cap", false, text(func(s *models.Signal, v string) { s.Fundamentals.MarketCap = v })},
	{"pe_ratio", false, optional(func(s *models.Signal, v *float64) { s.Fundamentals.PERatio = v })},
	{"eps", false, optional(func(s *models.Signal, v *float64) { s.Fundamentals.EPS = v })},
	{"dividend_yield", false, number(func(s *models.Signal, v float64) { s.Fundamentals.DividendYield = v })},
	{"volume", false, func(s *models.Signal, c cell) error {
		n, err := c.int()
		s.Fundamentals.Volume = n
		return err
	}},
	{"signal_date", false, text(func(s *models.Signal, v string) { s.Dates.SignalDate = util.NormalizeDate(v) })},
	{"last_updated", false, text(func(s *models.Signal, v string) { s.Dates.LastUpdated = util.NormalizeTimestamp(v) })},
	{"reasoning", false, text(func(s *models.Signal, v string) { s.Reasoning = v })},
}

// MapRows converts positional rows into signals. fields are the result schema names.
// Unknown columns are ignored; missing required columns and short rows are errors.
func MapRows(fields []string, rows [][]interface{}) ([]models.Signal, error) {
	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		pos[f] = i
	}
	for _, col := range signalColumns {
		if _, ok := pos[col.name]; !ok && col.required {
			return nil, fmt.Errorf("result schema is missing column %q", col.name)
		}
	}

	out := make([]models.Signal, 0, len(rows))
	for r, row := range rows {
		if len(row) < len(fields) {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d fields", r, len(row), len(fields))
		}
		var s models.Signal
		// trinity_score_avg follows the three sub-scores, so the computed fallback sees them set.
		for _, col := range signalColumns {
			i, ok := pos[col.name]
			if !ok {
				if col.name == "trinity_score_avg" {
					_ = col.set(&s, cell{})
				}
				continue
			}
			if err := col.set(&s, cell{v: row[i]}); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r, col.name, err)
			}
		}
		out = append(out, s)
	}
	return out, nil
}
