package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// feedChunkSize bounds how much the stream feeder copies into StreamBuf in
// one pass before rechecking backpressure.
const feedChunkSize = 32 * 1024

// StreamFeed is the demo stream-side external collaborator: it is not part
// of the core contract (spec's "out of scope: the HTTP stream fetcher"), but
// exercises StreamBuf the same way a real control-protocol/HTTP client
// would, so the CLI can drive the pipeline against real local files or URLs.
type StreamFeed struct {
	log *slog.Logger
}

// NewStreamFeed constructs a StreamFeed.
func NewStreamFeed(log *slog.Logger) *StreamFeed {
	if log == nil {
		log = slog.Default()
	}
	return &StreamFeed{log: log}
}

// Run opens source (a local file path or an http(s) URL) and copies its
// bytes into e.StreamBuf until EOF, honoring backpressure via StreamBuf's
// space/condvar, then marks StreamState disconnected.
func (f *StreamFeed) Run(ctx context.Context, e *Engine, source string) error {
	r, closeFn, err := openSource(ctx, source)
	if err != nil {
		return err
	}
	defer closeFn()

	buf := make([]byte, feedChunkSize)
	for {
		select {
		case <-ctx.Done():
			e.Stream.SetDisconnected(true)
			return ctx.Err()
		default:
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			f.writeWithBackpressure(ctx, e, buf[:n])
		}
		if rerr != nil {
			e.Stream.SetDisconnected(true)
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}

// writeWithBackpressure blocks on StreamBuf's condvar until there is room
// for chunk, then writes it.
func (f *StreamFeed) writeWithBackpressure(ctx context.Context, e *Engine, chunk []byte) {
	for {
		e.StreamBuf.Lock()
		if e.StreamBuf.Space() >= uint64(len(chunk)) {
			e.StreamBuf.Unlock()
			break
		}
		e.StreamBuf.WaitTimeout(pollInterval)
		e.StreamBuf.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	e.StreamBuf.Write(chunk)
}

func openSource(ctx context.Context, source string) (io.ReadCloser, func(), error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, func() {}, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, func() {}, err
		}
		return resp.Body, func() { resp.Body.Close() }, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { f.Close() }, nil
}
