package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

func newTestFetcher(binary string) *YTDLPMetadataFetcher {
	return NewYTDLPMetadataFetcher(&domain.DownloadConfig{YTDLPBinary: binary, MetadataTimeout: 10 * time.Second}, zap.NewNop())
}

func TestYTDLPMetadataFetcher_FetchTitle(t *testing.T) {
	script := writeFakeYTDLP(t, `
case "$*" in
  *--get-title*) printf '\nNever Gonna Give You Up\n' ;;
  *) exit 2 ;;
esac
`)

	title, err := newTestFetcher(script).FetchTitle(context.Background(), "https://youtu.be/abc123")

	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", title)
}

func TestYTDLPMetadataFetcher_FetchTitleFailure(t *testing.T) {
	script := writeFakeYTDLP(t, `
echo "ERROR: Unsupported URL" >&2
exit 1
`)

	_, err := newTestFetcher(script).FetchTitle(context.Background(), "https://example.com/nothing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMetadataFetch))
}

func TestYTDLPMetadataFetcher_FetchTitleEmpty(t *testing.T) {
	script := writeFakeYTDLP(t, `exit 0`)

	_, err := newTestFetcher(script).FetchTitle(context.Background(), "https://youtu.be/abc123")

	assert.True(t, errors.Is(err, domain.ErrMetadataFetch))
}

func TestYTDLPMetadataFetcher_FetchPlaylist(t *testing.T) {
	script := writeFakeYTDLP(t, `
cat <<'JSON'
{"_type": "playlist", "title": "Road Trip", "entries": [
  {"title": "First", "url": "https://youtu.be/1", "id": "1"},
  {"title": "Second", "url": "https://youtu.be/2", "id": "2"}
]}
JSON
`)

	info, err := newTestFetcher(script).FetchPlaylist(context.Background(), "https://youtube.com/playlist?list=XYZ")

	require.NoError(t, err)
	assert.Equal(t, "Road Trip", info.Title)
	require.Len(t, info.Items, 2)
	assert.Equal(t, domain.PlaylistItem{Index: 2, Title: "Second", URL: "https://youtu.be/2"}, info.Items[1])
}

func TestParseFlatPlaylist(t *testing.T) {
	info, err := parseFlatPlaylist([]byte(`{"_type": "video", "title": "Just One"}`))
	require.NoError(t, err)
	assert.Equal(t, []domain.PlaylistItem{{Index: 1, Title: "Just One"}}, info.Items)

	_, err = parseFlatPlaylist([]byte(`{"_type": "playlist", "title": "Empty", "entries": []}`))
	assert.True(t, errors.Is(err, domain.ErrMetadataFetch))

	_, err = parseFlatPlaylist([]byte(`not json`))
	assert.True(t, errors.Is(err, domain.ErrMetadataFetch))
}

func TestYTDLPMetadataFetcher_Cancelled(t *testing.T) {
	script := writeFakeYTDLP(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(script).FetchTitle(ctx, "https://youtu.be/abc123")

	assert.True(t, errors.Is(err, domain.ErrCancelled))
}
