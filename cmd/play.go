package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/codec/flac"
	"github.com/drgolem/lanplayer/internal/codec/mp3"
	"github.com/drgolem/lanplayer/internal/codec/pcm"
	"github.com/drgolem/lanplayer/internal/codec/vorbis"
	"github.com/drgolem/lanplayer/internal/engine"
)

var (
	playDeviceIdx int
	playStreamBuf uint64
	playOutputBuf uint64
	playVerbose   bool
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <file-or-url>",
	Short: "Decode and play a local file or HTTP(S) stream",
	Long: `play decodes a local audio file or HTTP(S) URL and writes it to the default
PortAudio output, driving the same stream/decode/output pipeline a real
control-protocol server and speaker would drive.

Codec is selected from the source's file extension: .flac/.fla, .ogg, .mp3.
Raw PCM ('p') is part of the codec registry but has no file-extension
detection here, since its start-stream parameters are normally supplied by
the control protocol out of band, not inferred from a filename.

Examples:
  lanplayer play track.flac
  lanplayer play https://example.com/stream.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVarP(&playDeviceIdx, "device", "d", -1, "PortAudio output device index (-1: default)")
	playCmd.Flags().Uint64VarP(&playStreamBuf, "stream-buffer", "s", 0, "StreamBuf capacity in bytes (0: default)")
	playCmd.Flags().Uint64VarP(&playOutputBuf, "output-buffer", "o", 0, "OutputBuf capacity in bytes (0: default)")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func runPlay(cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if playVerbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	source := args[0]
	codecID, err := codecIDForSource(source)
	if err != nil {
		return err
	}

	cfg := engine.DefaultConfig()
	if playStreamBuf != 0 {
		cfg.StreamBufCapacity = playStreamBuf
	}
	if playOutputBuf != 0 {
		cfg.OutputBufCapacity = playOutputBuf
	}

	e, err := engine.New(cfg, log)
	if err != nil {
		return fmt.Errorf("lanplayer: %w", err)
	}
	e.Init([]codec.Descriptor{
		{ID: 'p', MimeTags: "aif,pcm", MinReadBytes: 4096, MinOutputSpaceBytes: 102400, New: func() codec.Codec { return pcm.New(e, e) }},
		{ID: 'f', MimeTags: "flc", MinReadBytes: 8192, MinOutputSpaceBytes: 102400, New: func() codec.Codec { return flac.New(e, e) }},
		{ID: 'o', MimeTags: "ogg", MinReadBytes: 2048, MinOutputSpaceBytes: 20480, New: func() codec.Codec { return vorbis.New(e) }},
		{ID: 'm', MimeTags: "mp3", MinReadBytes: 8192, MinOutputSpaceBytes: 102400, New: func() codec.Codec { return mp3.New(e) }},
	})

	log.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("lanplayer: initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	if err := e.StartStream(codecID, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("lanplayer: start stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("signal received, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	feed := engine.NewStreamFeed(log)
	drain := engine.NewOutputDrain(playDeviceIdx, log)

	feedErrCh := make(chan error, 1)
	go func() { feedErrCh <- feed.Run(ctx, e, source) }()

	drainErr := drain.Run(ctx, e)
	e.Stop()

	if feedErr := <-feedErrCh; feedErr != nil && drainErr == nil {
		drainErr = feedErr
	}
	if drainErr != nil {
		return fmt.Errorf("lanplayer: %w", drainErr)
	}

	log.Info("playback complete")
	return nil
}

// codecIDForSource maps a file extension (or the final path segment of a URL)
// to the control-protocol codec identifier bytes listed in the registry.
func codecIDForSource(source string) (byte, error) {
	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".flac", ".fla":
		return 'f', nil
	case ".ogg":
		return 'o', nil
	case ".mp3":
		return 'm', nil
	default:
		return 0, fmt.Errorf("lanplayer: cannot infer codec from extension %q", ext)
	}
}
