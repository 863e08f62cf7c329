package imagedelete

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/projectform/internal/errors"
)

const (
	defaultTracerName = "projectform"
	defaultCSRFHeader = "X-CSRFToken"

	// maxResponseBytes bounds how much of the JSON reply is read.
	maxResponseBytes = 64 << 10
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// HTTPClient sends the requests. Default: http.DefaultClient, whose
	// transport defaults apply; no request timeout is added.
	HTTPClient *http.Client

	// CSRFHeader carries the anti-forgery token. Default: "X-CSRFToken".
	CSRFHeader string

	// TracerName names the OpenTelemetry tracer. Default: "projectform".
	TracerName string

	Logger *slog.Logger
}

// Client sends delete requests to the backend that owns persisted images.
type Client struct {
	http       *http.Client
	csrfHeader string
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = defaultCSRFHeader
	}
	if cfg.TracerName == "" {
		cfg.TracerName = defaultTracerName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		http:       cfg.HTTPClient,
		csrfHeader: cfg.CSRFHeader,
		tracer:     otel.Tracer(cfg.TracerName),
		logger:     cfg.Logger.With("component", "imagedelete"),
	}
}

// Request is one delete request.
type Request struct {
	// URL is the absolute deletion endpoint of the image.
	URL string

	// CSRFToken is the page's anti-forgery token.
	CSRFToken string

	// Cookies authenticate the request as the page's user.
	Cookies []*http.Cookie
}

type response struct {
	Success *bool `json:"success"`
}

// Do sends req. It returns nil only for a 2xx reply whose JSON body has
// "success": true. A body with "success": false is T202 whatever the
// status; anything else is T201.
func (c *Client) Do(ctx context.Context, req Request) error {
	ctx, span := c.tracer.Start(ctx, "imagedelete.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("url.full", req.URL),
		),
	)
	defer span.End()

	err := c.do(ctx, span, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (c *Client) do(ctx context.Context, span trace.Span, req Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, http.NoBody)
	if err != nil {
		return errors.New("T201").Wrap(err).WithDetail("building request: " + err.Error())
	}
	httpReq.Header.Set(c.csrfHeader, req.CSRFToken)
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	httpReq.Header.Set("Accept", "application/json")
	for _, cookie := range req.Cookies {
		httpReq.AddCookie(cookie)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.New("T201").Wrap(err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	// The backend answers refusals with {"success": false} under 4xx
	// statuses too, so the body decides before the status does.
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		if !ok {
			return errors.New("T201").WithDetail(fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
		return errors.New("T201").Wrap(err).WithDetail("decoding response: " + err.Error())
	}
	switch {
	case body.Success == nil:
		return errors.New("T201").WithDetail(fmt.Sprintf(`status %d, response has no "success" field`, resp.StatusCode))
	case !*body.Success:
		return errors.New("T202").WithDetail(fmt.Sprintf("status %d", resp.StatusCode))
	case !ok:
		return errors.New("T201").WithDetail(fmt.Sprintf("unexpected status %d with success=true", resp.StatusCode))
	}

	c.logger.Debug("delete confirmed", "url", req.URL)
	return nil
}

// PageDeleter binds a Client to the credentials of one page, implementing
// Deleter.
type PageDeleter struct {
	Client    *Client
	URL       func(imageID string) string
	CSRFToken string
	Cookies   []*http.Cookie
}

var _ Deleter = (*PageDeleter)(nil)

// Delete sends the delete request for imageID.
func (d *PageDeleter) Delete(ctx context.Context, imageID string) error {
	return d.Client.Do(ctx, Request{
		URL:       d.URL(imageID),
		CSRFToken: d.CSRFToken,
		Cookies:   d.Cookies,
	})
}
