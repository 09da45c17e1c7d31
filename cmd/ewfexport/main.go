// Command ewfexport opens an EWF-family image and streams the raw media
// bytes to stdout (or a file), per spec.md §6's "thin CLI" scope.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dnpa/goewf"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr *os.File) int {
	fs := flag.NewFlagSet("ewfexport", flag.ContinueOnError)
	out := fs.String("o", "", "output file path (default: stdout)")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "usage: ewfexport [-o out.raw] [-v] segment-file [segment-file ...]")
		return 1
	}

	logger := ewf.NewConsoleLogger(stderr, *verbose)
	h, err := ewf.OpenRead(paths, ewf.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(stderr, "ewfexport:", err)
		return ewf.CLIExitCode(err)
	}
	defer h.Close()

	dest := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintln(stderr, "ewfexport:", err)
			return 2
		}
		defer f.Close()
		dest = f
	}

	mv := h.GetMediaValues()
	const bufSize = 1 << 20
	buf := make([]byte, bufSize)
	var offset int64
	for offset < int64(mv.MediaSize) {
		want := bufSize
		if remaining := int64(mv.MediaSize) - offset; remaining < int64(want) {
			want = int(remaining)
		}
		n, err := h.Read(buf[:want], offset, want)
		if err != nil {
			fmt.Fprintln(stderr, "ewfexport:", err)
			return ewf.CLIExitCode(err)
		}
		if _, werr := dest.Write(buf[:n]); werr != nil {
			fmt.Fprintln(stderr, "ewfexport:", werr)
			return 2
		}
		offset += int64(n)
		if n == 0 {
			break
		}
	}
	return 0
}
