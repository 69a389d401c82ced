package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func TestEncodeQuery(t *testing.T) {
	q := encodeQuery(ir.ReferenceParams{
		Target:     "post_id",
		ID:         ir.IntID(5),
		Pagination: ir.Pagination{Page: 3, PerPage: 10},
		Sort:       ir.Sort{Field: "created_at", Order: ir.OrderDesc},
		Filter:     ir.Filter{"status": ir.IRString("approved")},
	})

	assert.Equal(t, "post_id", q.Get("target"))
	assert.Equal(t, `{"post_id":5,"status":"approved"}`, q.Get("filter"))
	assert.Equal(t, "[20,29]", q.Get("range"))
	assert.Equal(t, `["created_at","DESC"]`, q.Get("sort"))
}

func TestEncodeQueryOmitsUnsetPageAndSort(t *testing.T) {
	q := encodeQuery(ir.ReferenceParams{Target: "post_id", ID: ir.StringID("p-1")})
	assert.Equal(t, `{"post_id":"p-1"}`, q.Get("filter"))
	assert.False(t, q.Has("range"))
	assert.False(t, q.Has("sort"))
}

func TestDecodeQueryInvertsEncode(t *testing.T) {
	in := ir.ReferenceParams{
		Target:     "post_id",
		ID:         ir.IntID(5),
		Pagination: ir.Pagination{Page: 2, PerPage: 25},
		Sort:       ir.Sort{Field: "id", Order: ir.OrderAsc},
		Filter:     ir.Filter{"status": ir.IRString("approved")},
	}
	out, err := decodeQuery(encodeQuery(in))
	require.NoError(t, err)
	assert.Equal(t, ir.DescriptorID("comments", in), ir.DescriptorID("comments", out))
}

func TestDecodeQueryRejects(t *testing.T) {
	tests := map[string]url.Values{
		"no target":     {"filter": {`{"post_id":5}`}},
		"no id":         {"target": {"post_id"}, "filter": {`{}`}},
		"float id":      {"target": {"post_id"}, "filter": {`{"post_id":1.5}`}},
		"bad range":     {"target": {"post_id"}, "filter": {`{"post_id":5}`}, "range": {"[0]"}},
		"unaligned":     {"target": {"post_id"}, "filter": {`{"post_id":5}`}, "range": {"[5,14]"}},
		"bad sort":      {"target": {"post_id"}, "filter": {`{"post_id":5}`}, "sort": {`["id"]`}},
		"bad direction": {"target": {"post_id"}, "filter": {`{"post_id":5}`}, "sort": {`["id","UP"]`}},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeQuery(q)
			assert.Error(t, err)
		})
	}
}

func newHTTPPair(t *testing.T, fetcher Fetcher, opts ...HTTPOption) *HTTPFetcher {
	t.Helper()
	srv := httptest.NewServer(Handler(fetcher, nil))
	t.Cleanup(srv.Close)
	f, err := NewHTTPFetcher(srv.URL, opts...)
	require.NoError(t, err)
	return f
}

func TestHTTPFetcherRoundTrip(t *testing.T) {
	var gotResource string
	var gotParams ir.ReferenceParams
	backend := FetcherFunc(func(_ context.Context, resource string, p ir.ReferenceParams) (ir.FetchResult, error) {
		gotResource, gotParams = resource, p
		return ir.FetchResult{
			Data:  []ir.Record{{"id": int64(10), "post_id": int64(5)}, {"id": int64(11), "post_id": int64(5)}},
			Total: 42,
		}, nil
	})
	f := newHTTPPair(t, backend)

	res, err := f.FetchManyByReference(context.Background(), "comments", testParams)
	require.NoError(t, err)

	assert.Equal(t, "comments", gotResource)
	assert.Equal(t, ir.DescriptorID("comments", testParams), ir.DescriptorID("comments", gotParams))
	assert.Equal(t, 42, res.Total)
	require.Len(t, res.Data, 2)
	assert.Equal(t, json.Number("10"), res.Data[0]["id"])
}

func TestHTTPFetcherRemoteErrors(t *testing.T) {
	temp := FetcherFunc(func(_ context.Context, resource string, p ir.ReferenceParams) (ir.FetchResult, error) {
		return ir.FetchResult{}, NewError(resource, p, true, nil, "backend busy")
	})
	_, err := newHTTPPair(t, temp).FetchManyByReference(context.Background(), "comments", testParams)
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "backend busy")

	perm := FetcherFunc(func(_ context.Context, resource string, p ir.ReferenceParams) (ir.FetchResult, error) {
		return ir.FetchResult{}, NewError(resource, p, false, nil, "no such table")
	})
	_, err = newHTTPPair(t, perm).FetchManyByReference(context.Background(), "comments", testParams)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.False(t, IsTemporary(err), "body flag wins over 5xx status")
}

func TestHTTPFetcherStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			f, err := NewHTTPFetcher(srv.URL)
			require.NoError(t, err)
			_, err = f.FetchManyByReference(context.Background(), "comments", testParams)
			require.Error(t, err)
			assert.Equal(t, tt.temporary, IsTemporary(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPFetcherInvalidBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json": "<html>",
		"no total": `{"data":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			f, err := NewHTTPFetcher(srv.URL)
			require.NoError(t, err)
			_, err = f.FetchManyByReference(context.Background(), "comments", testParams)
			require.Error(t, err)
			assert.True(t, IsTransportError(err))
			assert.False(t, IsTemporary(err))
		})
	}
}

func TestHTTPFetcherRequestShape(t *testing.T) {
	var gotPath, gotAgent, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"data":[],"total":0}`))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL+"/api/", WithUserAgent("relq-test"), WithRequestTimeout(time.Second))
	require.NoError(t, err)
	res, err := f.FetchManyByReference(context.Background(), "comments", testParams)
	require.NoError(t, err)

	assert.Equal(t, "/api/comments", gotPath)
	assert.Equal(t, "relq-test", gotAgent)
	assert.Equal(t, "application/json", gotAccept)
	assert.NotNil(t, res.Data)
	assert.Equal(t, 0, res.Total)
}

func TestHTTPFetcherCancellationIsPermanent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f, err := NewHTTPFetcher(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.FetchManyByReference(ctx, "comments", testParams)
	require.Error(t, err)
	assert.False(t, IsTemporary(err))
}

func TestNewHTTPFetcherRejectsBadURL(t *testing.T) {
	_, err := NewHTTPFetcher("ftp://example.com")
	assert.Error(t, err)
	_, err = NewHTTPFetcher("://")
	assert.Error(t, err)
}
