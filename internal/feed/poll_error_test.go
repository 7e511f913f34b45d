package feed_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/rssnews/internal/feed"
	"github.com/jonesrussell/north-cloud/rssnews/internal/frontier"
)

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   feed.ErrorType
		level  feed.LogLevel
	}{
		{http.StatusTooManyRequests, feed.ErrTypeRateLimited, feed.LevelWarn},
		{http.StatusForbidden, feed.ErrTypeForbidden, feed.LevelWarn},
		{http.StatusNotFound, feed.ErrTypeNotFound, feed.LevelWarn},
		{http.StatusGone, feed.ErrTypeGone, feed.LevelWarn},
		{http.StatusServiceUnavailable, feed.ErrTypeUpstream, feed.LevelWarn},
		{http.StatusTeapot, feed.ErrTypeUnexpected, feed.LevelError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			e := feed.ClassifyHTTPStatus(tt.status, feedURL)
			assert.Equal(t, tt.want, e.Type)
			assert.Equal(t, tt.level, e.Level)
			assert.Contains(t, e.Error(), fmt.Sprintf("HTTP %d", tt.status))
		})
	}
}

func TestClassifyGatewayError(t *testing.T) {
	t.Parallel()

	link := "http://finance.yahoo.com/r/abc"
	cause := fmt.Errorf("%w: %w", frontier.ErrGatewayUnresolved, errors.New("dial tcp: refused"))

	e := feed.ClassifyGatewayError(cause, link)

	assert.Equal(t, feed.ErrTypeGateway, e.Type)
	assert.Equal(t, feed.LevelWarn, e.Level)
	assert.Equal(t, link, e.URL)
	require.ErrorIs(t, e, frontier.ErrGatewayUnresolved)
	assert.Contains(t, e.Error(), link)
}
