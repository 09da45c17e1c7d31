package ewf

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewConsoleLogger returns a human-readable zerolog.Logger for the cmd/
// tools, replacing the teacher's bare fmt.Printf progress notices in
// ewf.go (StreamToVMDK, ParseVolume) with structured, leveled output.
// Library code itself always defaults to zerolog.Nop() (see Handle's
// zero-value log field and WithLogger) — only main packages wire a
// console writer, matching spec's "thin CLI" framing of the tool layer.
func NewConsoleLogger(w io.Writer, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}
