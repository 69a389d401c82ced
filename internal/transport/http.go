package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/relq/internal/ir"
)

const defaultUserAgent = "relq"

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// httpOptions holds configuration for NewHTTPFetcher.
type httpOptions struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// HTTPOption is a functional option for NewHTTPFetcher.
type HTTPOption func(*httpOptions)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpOptions) {
		o.client = c
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(userAgent string) HTTPOption {
	return func(o *httpOptions) {
		o.userAgent = userAgent
	}
}

// WithRequestTimeout bounds each request. Zero means no timeout beyond ctx.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		o.timeout = d
	}
}

// userAgentTransport wraps an http.RoundTripper and injects a User-Agent header.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// HTTPFetcher fetches reference pages from a REST endpoint.
//
// Request: GET {base}/{resource}?target=T&filter={"T":id,...}&range=[start,end]&sort=["field","ORDER"]
// Response: {"data":[...],"total":N}
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPFetcher creates a fetcher for the API rooted at baseURL.
func NewHTTPFetcher(baseURL string, opts ...HTTPOption) (*HTTPFetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	options := &httpOptions{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
	if client == nil {
		client = &http.Client{}
	}
	baseTransport := client.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	userAgent := defaultUserAgent
	if options.userAgent != "" {
		userAgent = options.userAgent
	}

	return &HTTPFetcher{
		base: base,
		client: &http.Client{
			Transport: &userAgentTransport{base: baseTransport, userAgent: userAgent},
			Timeout:   options.timeout,
			Jar:       client.Jar,
		},
	}, nil
}

// FetchManyByReference implements Fetcher.
func (f *HTTPFetcher) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	endpoint := f.base.JoinPath(resource)
	endpoint.RawQuery = encodeQuery(params).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, false, err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		// Cancellation by the caller is final; network failures are not.
		temporary := !errors.Is(err, context.Canceled)
		return ir.FetchResult{}, NewError(resource, params, temporary, err, "GET %s", endpoint.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, true, err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		temporary := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		msg := strings.TrimSpace(string(body[:min(len(body), maxErrorBody)]))
		if decoded, err := decodeResponse(body); err == nil && decoded.Error != "" {
			temporary = decoded.Temporary
			msg = decoded.Error
		}
		return ir.FetchResult{}, NewError(resource, params, temporary, nil, "GET %s: status %d: %s", endpoint.Path, resp.StatusCode, msg)
	}

	decoded, err := decodeResponse(body)
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, false, err, "GET %s", endpoint.Path)
	}
	res, err := decoded.result()
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, false, err, "GET %s", endpoint.Path)
	}
	return res, nil
}

// encodeQuery renders params as REST query parameters. The target
// constraint is folded into the filter, overriding a filter key of the
// same name.
func encodeQuery(p ir.ReferenceParams) url.Values {
	filter := make(ir.IRObject, len(p.Filter)+1)
	for k, v := range p.Filter {
		filter[k] = v
	}
	filter[p.Target] = p.ID.Value()

	q := url.Values{}
	q.Set("target", p.Target)
	q.Set("filter", string(ir.MarshalCanonical(filter)))
	if p.Pagination.PerPage > 0 {
		start := p.Pagination.Offset()
		q.Set("range", fmt.Sprintf("[%d,%d]", start, start+p.Pagination.PerPage-1))
	}
	if p.Sort.Field != "" {
		order := p.Sort.Order
		if order == "" {
			order = ir.OrderAsc
		}
		sortJSON, _ := json.Marshal([]string{p.Sort.Field, string(order)})
		q.Set("sort", string(sortJSON))
	}
	return q
}

// decodeQuery is the inverse of encodeQuery.
func decodeQuery(q url.Values) (ir.ReferenceParams, error) {
	var p ir.ReferenceParams

	p.Target = q.Get("target")
	if p.Target == "" {
		return p, fmt.Errorf("target is required")
	}

	var filter ir.IRObject
	if raw := q.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			return p, fmt.Errorf("filter: %w", err)
		}
	}
	idValue, ok := filter[p.Target]
	if !ok {
		return p, fmt.Errorf("filter has no %q constraint", p.Target)
	}
	id, err := ir.ParseID(idValue)
	if err != nil {
		return p, fmt.Errorf("filter %q: %w", p.Target, err)
	}
	p.ID = id
	delete(filter, p.Target)
	p.Filter = filter

	if raw := q.Get("range"); raw != "" {
		var bounds []int
		if err := json.Unmarshal([]byte(raw), &bounds); err != nil || len(bounds) != 2 {
			return p, fmt.Errorf("range must be [start,end]")
		}
		start, end := bounds[0], bounds[1]
		perPage := end - start + 1
		if start < 0 || perPage < 1 || start%perPage != 0 {
			return p, fmt.Errorf("range [%d,%d] is not a page", start, end)
		}
		p.Pagination = ir.Pagination{Page: start/perPage + 1, PerPage: perPage}
	}

	if raw := q.Get("sort"); raw != "" {
		var pair []string
		if err := json.Unmarshal([]byte(raw), &pair); err != nil || len(pair) != 2 {
			return p, fmt.Errorf("sort must be [field,order]")
		}
		order, err := ir.ParseOrder(pair[1])
		if err != nil {
			return p, err
		}
		p.Sort = ir.Sort{Field: pair[0], Order: order}
	}

	return p, nil
}
