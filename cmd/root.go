package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lanplayer",
	Short: "Headless network audio player core",
	Long: `lanplayer - a headless network audio player built around two lock-protected
SPSC ring buffers (a stream buffer and an output buffer) connecting a stream
goroutine, a decode engine, and an output goroutine.

The decode engine negotiates codec, sample rate, and track boundaries through
shared state rather than package-level globals, and supports FLAC, Vorbis,
MP3, and raw PCM through a single uniform codec interface.

Commands:
  - play: decode a local file or HTTP stream and play it through PortAudio`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
