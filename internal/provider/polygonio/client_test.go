package polygonio_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketdata/internal/provider/polygonio"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestGetAggs(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodGet, req.Method)
		require.Equal(t, fmt.Sprintf("/v2/aggs/ticker/AAPL/range/1/day/%d/%d", from.UnixMilli(), to.UnixMilli()), req.URL.Path)
		require.Equal(t, "true", req.URL.Query().Get("adjusted"))
		require.Equal(t, "asc", req.URL.Query().Get("sort"))
		require.Equal(t, "50000", req.URL.Query().Get("limit"))
		require.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
		return jsonResponse(http.StatusOK, fmt.Sprintf(
			`{"ticker":"AAPL","status":"OK","resultsCount":1,"results":[{"t":%d,"o":185.0,"h":186.2,"l":184.5,"c":185.9,"v":50000000,"vw":185.4,"n":12345}]}`,
			from.UnixMilli())), nil
	})

	client := polygonio.NewClient("test-key", polygonio.WithHTTPClient(httpClient))
	aggs, err := client.GetAggs(context.Background(), "AAPL", 1, "day", from, to)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	require.Equal(t, polygonio.Agg{
		Timestamp:    from.UnixMilli(),
		Open:         185.0,
		High:         186.2,
		Low:          184.5,
		Close:        185.9,
		Volume:       50_000_000,
		VWAP:         185.4,
		Transactions: 12345,
	}, aggs[0])
}

func TestGetAggs_CustomHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "tracing-value", req.Header.Get("X-Custom"))
		return jsonResponse(http.StatusOK, `{"status":"OK","results":[]}`), nil
	})

	client := polygonio.NewClient("test-key",
		polygonio.WithHTTPClient(httpClient),
		polygonio.WithHeader(http.Header{"X-Custom": []string{"tracing-value"}}))
	_, err := client.GetAggs(context.Background(), "AAPL", 1, "day", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
}

func TestGetAggs_NonOKStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusTooManyRequests, `{}`), nil)

	client := polygonio.NewClient("test-key", polygonio.WithHTTPClient(httpClient))
	_, err := client.GetAggs(context.Background(), "AAPL", 1, "day", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestGetAggs_APIError(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(
		jsonResponse(http.StatusOK, `{"status":"ERROR","error":"unknown ticker"}`), nil)

	client := polygonio.NewClient("test-key", polygonio.WithHTTPClient(httpClient))
	_, err := client.GetAggs(context.Background(), "NOPE", 1, "day", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown ticker")
}

func TestGetAggs_BadJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{"results":`), nil)

	client := polygonio.NewClient("test-key", polygonio.WithHTTPClient(httpClient))
	_, err := client.GetAggs(context.Background(), "AAPL", 1, "day", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
}
