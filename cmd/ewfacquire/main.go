// Command ewfacquire streams an input file (standing in for raw source-device
// I/O, which spec.md §1 scopes out as an external collaborator) into a
// freshly written EWF-family image.
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
	fs := flag.NewFlagSet("ewfacquire", flag.ContinueOnError)
	basename := fs.String("o", "image", "output basename (image.E01, image.E02, ...)")
	formatName := fs.String("format", "ENCASE6", "format flavor (SMART, EWF, ENCASE1..6, LINEN5, LINEN6, FTK, EWFX, LVF)")
	sectorsPerChunk := fs.Uint("spc", 64, "sectors per chunk")
	bytesPerSector := fs.Uint("bps", 512, "bytes per sector")
	compressionName := fs.String("compression", "fast", "none, fast, best")
	caseNumber := fs.String("case", "", "case number header field")
	examiner := fs.String("examiner", "", "examiner name header field")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	inputs := fs.Args()
	if len(inputs) != 1 {
		fmt.Fprintln(stderr, "usage: ewfacquire -o basename [options] input-file")
		return 1
	}

	format, err := ewf.ParseFormat(*formatName)
	if err != nil {
		fmt.Fprintln(stderr, "ewfacquire:", err)
		return 1
	}
	compression, err := ewf.ParseCompressionLevel(*compressionName)
	if err != nil {
		fmt.Fprintln(stderr, "ewfacquire:", err)
		return 1
	}

	in, err := os.Open(inputs[0])
	if err != nil {
		fmt.Fprintln(stderr, "ewfacquire:", err)
		return 2
	}
	defer in.Close()

	mv := ewf.NewMediaValues(uint32(*sectorsPerChunk), uint32(*bytesPerSector), format, compression)
	logger := ewf.NewConsoleLogger(stderr, *verbose)
	h, err := ewf.OpenWrite(*basename, mv, format, compression, ewf.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(stderr, "ewfacquire:", err)
		return ewf.CLIExitCode(err)
	}
	if *caseNumber != "" {
		h.SetHashValue("c", *caseNumber)
	}
	if *examiner != "" {
		h.SetHashValue("e", *examiner)
	}

	buf := make([]byte, 1<<20)
	var total int64
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				fmt.Fprintln(stderr, "ewfacquire:", werr)
				h.Close()
				return ewf.CLIExitCode(werr)
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			fmt.Fprintln(stderr, "ewfacquire:", rerr)
			h.Close()
			return 2
		}
	}
	if err := h.Close(); err != nil {
		fmt.Fprintln(stderr, "ewfacquire:", err)
		return ewf.CLIExitCode(err)
	}
	fmt.Fprintf(stdout, "acquired %d bytes into %s.*\n", total, *basename)
	return 0
}
