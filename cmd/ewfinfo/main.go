// Command ewfinfo dumps media values, header metadata, and the section
// list of an EWF-family image, mirroring spec.md §6's "thin CLI" scope.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dnpa/goewf"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("ewfinfo", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "usage: ewfinfo [-v] segment-file [segment-file ...]")
		return 1
	}

	logger := ewf.NewConsoleLogger(stderr, *verbose)
	h, err := ewf.OpenRead(paths, ewf.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(stderr, "ewfinfo:", err)
		return exitCodeFor(err)
	}
	defer h.Close()

	mv := h.GetMediaValues()
	fmt.Fprintf(stdout, "format:            %s\n", mv.Format)
	fmt.Fprintf(stdout, "media size:        %d bytes\n", mv.MediaSize)
	fmt.Fprintf(stdout, "chunk size:        %d bytes\n", mv.ChunkSize)
	fmt.Fprintf(stdout, "sectors per chunk: %d\n", mv.SectorsPerChunk)
	fmt.Fprintf(stdout, "bytes per sector:  %d\n", mv.BytesPerSector)
	fmt.Fprintf(stdout, "number of chunks:  %d\n", mv.NumberOfChunks)
	fmt.Fprintf(stdout, "number of sectors: %d\n", mv.NumberOfSectors)
	fmt.Fprintf(stdout, "guid:              %x\n", mv.GUID)

	for _, key := range []string{"c", "n", "a", "e", "t", "av", "ov", "m", "u"} {
		if v, ok := h.GetHashValue(key); ok && v != "" {
			fmt.Fprintf(stdout, "header[%s]:         %s\n", key, v)
		}
	}
	if md5, ok := h.GetHashValue("md5"); ok {
		fmt.Fprintf(stdout, "md5:               %s\n", md5)
	}
	if sha1, ok := h.GetHashValue("sha1"); ok {
		fmt.Fprintf(stdout, "sha1:              %s\n", sha1)
	}
	return 0
}

// exitCodeFor maps an error to spec.md §6's CLI exit codes: 1 invalid
// argument, 2 I/O, 3 format, 4 integrity, defaulting to 2 for anything else
// unexpected.
func exitCodeFor(err error) int {
	return ewf.CLIExitCode(err)
}
