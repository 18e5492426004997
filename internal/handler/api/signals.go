package api

import (
	"errors"
	"strconv"
	"time"

	"Indicium/internal/domain/models"
	domsvc "Indicium/internal/domain/service"
	"Indicium/internal/service/auth"
	svccache "Indicium/internal/service/cache"
	"Indicium/internal/service/ratelimit"
	xhttp "Indicium/pkg/http"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/util"

	"github.com/labstack/echo/v4"
)

// Response headers set on successful signal responses.
const (
	HeaderGeneratedAt        = "X-Data-Generated-At"
	HeaderCacheHit           = "X-Cache-Hit"
	HeaderAPIVersion         = "X-API-Version"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

const (
	invalidFormatMessage = "Format must be 'json' or 'csv'"
	cacheEmptyMessage    = "Cache not yet populated. Please retry in 30 seconds."
	cacheEmptyRetry      = 30
)

// HandlerConfig carries the values echoed in response headers.
type HandlerConfig struct {
	ServiceName string
	APIVersion  string
	TTLSeconds  int
}

// SignalsHandler serves the cached snapshot behind token auth and rate limiting.
type SignalsHandler struct {
	validator domsvc.TokenValidator
	limiter   domsvc.RateLimiter
	snapshots domsvc.SnapshotReader
	logger    *applogger.Logger
	cfg       HandlerConfig
	now       func() time.Time
}

var _ xhttp.Handler = (*SignalsHandler)(nil)

func NewSignalsHandler(v domsvc.TokenValidator, l domsvc.RateLimiter, s domsvc.SnapshotReader, logger *applogger.Logger, cfg HandlerConfig) *SignalsHandler {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &SignalsHandler{
		validator: v,
		limiter:   l,
		snapshots: s,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the clock used for the CSV filename.
func (h *SignalsHandler) SetClock(now func() time.Time) { h.now = now }

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	health := xhttp.HealthCheck(h.cfg.ServiceName, h.cfg.APIVersion)
	e.GET("/", health)
	e.GET("/health", health)
	e.GET("/v1/signals", h.Signals)
}

// Signals handles GET /v1/signals?token=&format=json|csv.
func (h *SignalsHandler) Signals(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()
	token := c.QueryParam("token")

	if _, err := h.validator.Validate(ctx, token); err != nil {
		return h.authFailure(err)
	}

	decision, err := h.limiter.Check(ctx, token)
	if decision.Limit > 0 {
		c.Response().Header().Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
		c.Response().Header().Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	}
	if err != nil {
		var le *ratelimit.LimitError
		if errors.As(err, &le) {
			h.logger.Warn("rate limit exceeded",
				applogger.String("token", util.MaskToken(token)),
				applogger.String("window", le.Kind),
			)
			return xhttp.TooManyRequestsError(le.Kind, le.Error(), le.RetryAfter)
		}
		return xhttp.InternalError(err)
	}

	req := &models.SignalsRequest{}
	if err := xhttp.BindQuery(c, req); err != nil {
		var fe xhttp.FieldErrors
		if !errors.As(err, &fe) {
			return xhttp.InternalError(err)
		}
		h.logger.Debug("rejected query", applogger.String("reason", fe.Error()))
		return xhttp.BadRequestError(xhttp.CodeInvalidFormat, invalidFormatMessage)
	}

	snap, err := h.snapshots.Load(ctx)
	if errors.Is(err, svccache.ErrCacheEmpty) {
		h.logger.Error("snapshot cache is empty")
		return xhttp.ServiceUnavailableError(xhttp.CodeCacheEmpty, cacheEmptyMessage).WithRetryAfter(cacheEmptyRetry)
	}
	if err != nil {
		return xhttp.InternalError(err)
	}

	hdr := c.Response().Header()
	hdr.Set(HeaderGeneratedAt, xhttp.Timestamp(snap.Meta.GeneratedAt))
	hdr.Set(HeaderCacheHit, "true")
	hdr.Set(HeaderAPIVersion, h.cfg.APIVersion)
	hdr.Set(echo.HeaderCacheControl, "public, max-age="+strconv.Itoa(h.cfg.TTLSeconds))

	defer func() {
		h.logger.Info("signals served",
			applogger.String("token", util.MaskToken(token)),
			applogger.String("format", req.Format),
			applogger.Int("rows", len(snap.Data)),
			applogger.Duration("duration", time.Since(start)),
		)
	}()

	if req.Format == models.FormatCSV {
		return xhttp.CSVResponse(c, CSVFilename(h.now()), SignalsToCSV(snap.Data))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *SignalsHandler) authFailure(err error) error {
	var ae *auth.AuthError
	if errors.As(err, &ae) {
		return xhttp.UnauthorizedError(ae.Kind, ae.Error())
	}
	return xhttp.UnauthorizedError(auth.KindError, (&auth.AuthError{Kind: auth.KindError}).Error()).WithError(err)
}
