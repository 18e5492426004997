package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Indicium/internal/domain/models"
	domrepo "Indicium/internal/domain/repository"
	xhttp "Indicium/pkg/http"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/metrics"
)

const defaultBaseURL = "https://bigquery.googleapis.com/bigquery/v2"

// Config holds BigQuery query settings.
type Config struct {
	ProjectID    string
	Dataset      string
	View         string
	MaxRows      int
	QueryTimeout time.Duration
	BaseURL      string
	Retry        xhttp.RetryConfig
}

type queryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySql"`
	TimeoutMs    int64  `json:"timeoutMs"`
}

type queryResponse struct {
	JobComplete bool `json:"jobComplete"`
	Schema      struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"schema"`
	Rows []struct {
		F []struct {
			V interface{} `json:"v"`
		} `json:"f"`
	} `json:"rows"`
	TotalRows string `json:"totalRows"`
}

// accessTokens is satisfied by *TokenSource.
type accessTokens interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// BigQuerySource runs the signals query over the BigQuery REST API.
type BigQuerySource struct {
	cfg     Config
	tokens  accessTokens
	client  *xhttp.Client
	logger  *applogger.Logger
	metrics domrepo.Metrics
}

var _ domrepo.SignalSource = (*BigQuerySource)(nil)

func NewBigQuerySource(cfg Config, tokens accessTokens, client *xhttp.Client, logger *applogger.Logger, m domrepo.Metrics) *BigQuerySource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 100
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &BigQuerySource{cfg: cfg, tokens: tokens, client: client, logger: logger, metrics: m}
}

func (b *BigQuerySource) Name() string { return models.SourceBigQuery }

func (b *BigQuerySource) View() string { return b.cfg.View }

// Query is the SQL text sent to the warehouse.
func (b *BigQuerySource) Query() string {
	return fmt.Sprintf("SELECT * FROM `%s.%s.%s` ORDER BY signal_strength DESC, ticker ASC LIMIT %d",
		b.cfg.ProjectID, b.cfg.Dataset, b.cfg.View, b.cfg.MaxRows)
}

// FetchSignals returns the current signals. Retryable failures are retried within cfg.Retry.
func (b *BigQuerySource) FetchSignals(ctx context.Context) ([]models.Signal, error) {
	var out []models.Signal
	attempt := 0
	reauthed := false

	err := xhttp.Retry(ctx, b.cfg.Retry, IsRetryable, func(ctx context.Context) error {
		attempt++
		signals, err := b.fetchOnce(ctx)
		if err != nil {
			ue := upstream("query", err)
			if ue.Op == "query" && isUnauthorized(ue) {
				// The cached token was dropped; one more attempt with a fresh one.
				ue.Retryable = !reauthed
				reauthed = true
			}
			b.metrics.RecordUpstreamError(ue.Op, ue.Retryable)
			b.logger.Warn("bigquery fetch attempt failed",
				applogger.Int("attempt", attempt),
				applogger.String("op", ue.Op),
				applogger.Bool("retryable", ue.Retryable),
				applogger.Error(ue.Err),
			)
			return ue
		}
		out = signals
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BigQuerySource) fetchOnce(ctx context.Context) ([]models.Signal, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	endpoint := fmt.Sprintf("%s/projects/%s/queries", strings.TrimRight(b.cfg.BaseURL, "/"), b.cfg.ProjectID)
	err = b.client.PostJSON(ctx, endpoint, map[string]string{"Authorization": "Bearer " + token}, queryRequest{
		Query:        b.Query(),
		UseLegacySQL: false,
		TimeoutMs:    b.cfg.QueryTimeout.Milliseconds(),
	}, &resp)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			b.tokens.Invalidate()
		}
		return nil, upstream("query", err)
	}

	if !resp.JobComplete {
		return nil, &UpstreamError{Op: "query", Err: ErrUpstreamTimeout}
	}
	if len(resp.Rows) == 0 {
		return nil, &UpstreamError{Op: "query", Err: ErrNoData}
	}

	fields := make([]string, len(resp.Schema.Fields))
	for i, f := range resp.Schema.Fields {
		fields[i] = f.Name
	}
	rows := make([][]interface{}, len(resp.Rows))
	for i, r := range resp.Rows {
		row := make([]interface{}, len(r.F))
		for j, c := range r.F {
			row[j] = c.V
		}
		rows[i] = row
	}

	signals, err := MapRows(fields, rows)
	if err != nil {
		return nil, &UpstreamError{Op: "decode", Err: err}
	}
	return signals, nil
}
