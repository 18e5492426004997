package api

import (
	"strconv"
	"strings"
	"time"

	"Indicium/internal/domain/models"
	"Indicium/pkg/util"
)

// CSVHeader is the fixed column order of the CSV export.
var CSVHeader = []string{
	"id",
	"ticker",
	"company_name",
	"sector",
	"signal_type",
	"signal_strength",
	"dominant_author",
	"price",
	"change_percent",
	"target_price",
	"stop_loss",
	"trinity_score_lynch",
	"trinity_score_oneil",
	"trinity_score_graham",
	"trinity_score_avg",
	"confidence",
	"signal_date",
	"last_updated",
	"market_cap",
	"pe_ratio",
	"eps",
	"dividend_yield",
	"volume",
	"reasoning",
}

// SignalsToCSV flattens signals into one row each under CSVHeader.
// Lines are joined by \n with no trailing newline.
func SignalsToCSV(signals []models.Signal) string {
	var b strings.Builder
	writeCSVRow(&b, CSVHeader)
	for i := range signals {
		b.WriteByte('\n')
		writeCSVRow(&b, csvRecord(&signals[i]))
	}
	return b.String()
}

// CSVFilename names the export after the UTC date of now.
func CSVFilename(now time.Time) string {
	return "indicium-signals-" + util.FormatDate(now) + ".csv"
}

func csvRecord(s *models.Signal) []string {
	return []string{
		s.ID,
		s.Ticker,
		s.CompanyName,
		s.Sector,
		s.Signal.Type,
		formatFloat(s.Signal.Strength),
		s.Signal.DominantAuthor,
		formatFloat(s.Price.Current),
		formatFloat(s.Price.ChangePercent),
		formatOptional(s.Price.Target),
		formatOptional(s.Price.StopLoss),
		formatFloat(s.Scores.Lynch),
		formatFloat(s.Scores.ONeil),
		formatFloat(s.Scores.Graham),
		formatFloat(s.Scores.Average),
		formatFloat(s.Signal.Confidence),
		s.Dates.SignalDate,
		s.Dates.LastUpdated,
		s.Fundamentals.MarketCap,
		formatOptional(s.Fundamentals.PERatio),
		formatOptional(s.Fundamentals.EPS),
		formatFloat(s.Fundamentals.DividendYield),
		strconv.FormatInt(s.Fundamentals.Volume, 10),
		s.Reasoning,
	}
}

func writeCSVRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeCSV(f))
	}
}

// escapeCSV quotes fields holding a comma, quote, or line break and doubles inner quotes.
func escapeCSV(v string) string {
	if !strings.ContainsAny(v, ",\"\n\r") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
