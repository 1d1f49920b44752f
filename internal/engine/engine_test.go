package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

// fakeCodec is a minimal codec.Codec used to drive Engine's decode loop
// without any real audio format.
type fakeCodec struct {
	opened  bool
	closed  bool
	results chan codec.DecodeResult
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{results: make(chan codec.DecodeResult, 8)}
}

func (c *fakeCodec) Open(streamBuf, outputBuf *ringbuf.RingBuffer, params codec.OpenParams) error {
	c.opened = true
	return nil
}

func (c *fakeCodec) Close() error {
	c.closed = true
	return nil
}

func (c *fakeCodec) Decode() codec.DecodeResult {
	select {
	case r := <-c.results:
		return r
	default:
		return codec.Running
	}
}

func testDescriptor(id byte, construct func() codec.Codec) codec.Descriptor {
	return codec.Descriptor{
		ID:                  id,
		MimeTags:            "test",
		MinReadBytes:        1,
		MinOutputSpaceBytes: 1,
		New:                 construct,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{StreamBufCapacity: 1 << 20, OutputBufCapacity: 1 << 20}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRejectsUndersizedStreamBuf(t *testing.T) {
	_, err := New(Config{StreamBufCapacity: 1, OutputBufCapacity: 1 << 20}, nil)
	if err == nil {
		t.Fatal("want an error for a StreamBufCapacity below 2x max FLAC block")
	}
}

func TestStartStreamUnknownCodecReturnsErrCodecUnavailable(t *testing.T) {
	e := newTestEngine(t)
	e.Init(nil)

	if err := e.StartStream('a', 0, 0, 0, 0); !errors.Is(err, ErrCodecUnavailable) {
		t.Fatalf("want ErrCodecUnavailable, got %v", err)
	}
}

func TestNotifyTrackStartRecordsRateAndOffset(t *testing.T) {
	e := newTestEngine(t)
	e.OutputBuf.Lock()
	e.OutputBuf.AdvanceWrite(16)
	e.OutputBuf.Unlock()

	e.NotifyTrackStart(44100)

	if e.Output.NextSampleRate != 44100 {
		t.Fatalf("want sample rate 44100, got %d", e.Output.NextSampleRate)
	}
	offset, ok := e.Output.ConsumeTrackStart()
	if !ok || offset != 16 {
		t.Fatalf("want track start recorded at offset 16, got (%d, %v)", offset, ok)
	}
}

func TestThresholdsMetOnDisconnectWithEmptyInput(t *testing.T) {
	e := newTestEngine(t)
	desc := testDescriptor('t', func() codec.Codec { return newFakeCodec() })

	if e.thresholdsMet(desc) {
		t.Fatal("want thresholds unmet while connected with no input")
	}

	e.Stream.SetDisconnected(true)
	if !e.thresholdsMet(desc) {
		t.Fatal("want thresholds considered met once disconnected with no input, so Decode can observe COMPLETE")
	}
}

func TestRunDecodeLoopStopsOnComplete(t *testing.T) {
	e := newTestEngine(t)
	fc := newFakeCodec()
	desc := testDescriptor('t', func() codec.Codec { return fc })
	e.Init([]codec.Descriptor{desc})

	fc.results <- codec.Complete
	e.StreamBuf.Write([]byte{0}) // satisfy thresholdsMet's MinReadBytes=1

	if err := e.StartStream('t', 0, 0, 0, 0); err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("decode loop did not stop after COMPLETE")
	}

	if e.Decode.IsRunning() {
		t.Fatal("want DecodeState stopped after COMPLETE")
	}
	e.Stop()
	if !fc.closed {
		t.Fatal("want Stop to close the active codec")
	}
}

func TestRunDecodeLoopStopsOnContextCancel(t *testing.T) {
	e := newTestEngine(t)
	fc := newFakeCodec()
	desc := testDescriptor('t', func() codec.Codec { return fc })
	e.Init([]codec.Descriptor{desc})

	if err := e.StartStream('t', 0, 0, 0, 0); err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	e.Stop()
	if !fc.closed {
		t.Fatal("want Stop to close the active codec after cancellation")
	}

	// Stop must be idempotent.
	e.Stop()
}
