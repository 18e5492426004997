package api

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"Indicium/internal/domain/models"
)

func nvda() models.Signal {
	target := 575.0
	eps := 6.32
	return models.Signal{
		ID:          "sig-001",
		Ticker:      "NVDA",
		CompanyName: "NVIDIA Corporation",
		Sector:      "Technology",
		Signal:      models.SignalInfo{Type: "BUY", Strength: 95, DominantAuthor: "O'Neil", Confidence: 92},
		Price:       models.PriceInfo{Current: 495.5, ChangePercent: 3.2, Target: &target},
		Scores:      models.TrinityScores{Lynch: 88, ONeil: 95, Graham: 72, Average: 85},
		Fundamentals: models.Fundamentals{
			MarketCap:     "$2.5T",
			EPS:           &eps,
			DividendYield: 0.05,
			Volume:        45230000,
		},
		Dates:     models.SignalDates{SignalDate: "2025-01-02", LastUpdated: "2025-01-02T10:00:00Z"},
		Reasoning: `Breakout, "clean" base`,
	}
}

func TestSignalsToCSV(t *testing.T) {
	out := SignalsToCSV([]models.Signal{nvda()})
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if lines[0] != strings.Join(CSVHeader, ",") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	want := `sig-001,NVDA,NVIDIA Corporation,Technology,BUY,95,O'Neil,495.5,3.2,575,,88,95,72,85,92,2025-01-02,2025-01-02T10:00:00Z,$2.5T,,6.32,0.05,45230000,"Breakout, ""clean"" base"`
	if lines[1] != want {
		t.Fatalf("unexpected row\n got: %s\nwant: %s", lines[1], want)
	}
	if strings.HasSuffix(out, "\n") {
		t.Fatalf("expected no trailing newline")
	}
}

func TestSignalsToCSVEmpty(t *testing.T) {
	out := SignalsToCSV(nil)
	if out != strings.Join(CSVHeader, ",") {
		t.Fatalf("expected header only, got %q", out)
	}
	if len(CSVHeader) != 24 {
		t.Fatalf("expected 24 columns, got %d", len(CSVHeader))
	}
}

func TestCSVFilename(t *testing.T) {
	now := time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	if got := CSVFilename(now); got != "indicium-signals-2025-03-10.csv" {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestSignalsToCSVProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	genText := gen.OneGenOf(
		gen.AlphaString(),
		gen.OneConstOf("a,b", `say "hi"`, `x, "y", z`, ",", `"`),
	)
	genSignal := gopter.CombineGens(genText, genText, gen.Float64Range(0, 1000)).
		Map(func(v []interface{}) models.Signal {
			s := nvda()
			s.CompanyName = v[0].(string)
			s.Reasoning = v[1].(string)
			s.Price.Current = v[2].(float64)
			return s
		})

	properties.Property("one line per signal plus header", prop.ForAll(
		func(signals []models.Signal) bool {
			return len(strings.Split(SignalsToCSV(signals), "\n")) == len(signals)+1
		},
		gen.SliceOf(genSignal),
	))

	properties.Property("fields round-trip through a CSV reader", prop.ForAll(
		func(signals []models.Signal) bool {
			records, err := csv.NewReader(strings.NewReader(SignalsToCSV(signals))).ReadAll()
			if err != nil || len(records) != len(signals)+1 {
				return false
			}
			for i, rec := range records {
				if len(rec) != 24 {
					return false
				}
				if i == 0 {
					continue
				}
				if rec[2] != signals[i-1].CompanyName || rec[23] != signals[i-1].Reasoning {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genSignal),
	))

	properties.TestingRun(t)
}
