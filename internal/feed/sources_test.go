package feed_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/rssnews/internal/feed"
)

func TestParseSourceList(t *testing.T) {
	t.Parallel()

	input := "AAPL\tApple Inc.\n\nBRK.B\tBerkshire Hathaway\tClass B\n"

	sources, err := feed.ParseSourceList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "AAPL", sources[0].Symbol)
	assert.Equal(t, "Apple Inc.", sources[0].Company)
	assert.Equal(t, "http://finance.yahoo.com/rss/headline?s=AAPL", sources[0].FeedURL)

	assert.Equal(t, "BRK.B", sources[1].Symbol)
	assert.Equal(t, "Berkshire Hathaway\tClass B", sources[1].Company)
}

func TestParseSourceList_MissingTab(t *testing.T) {
	t.Parallel()

	_, err := feed.ParseSourceList(strings.NewReader("AAPL\tApple\nMSFT Microsoft\n"))
	require.ErrorContains(t, err, "line 2")
}
