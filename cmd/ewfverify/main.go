// Command ewfverify opens an EWF-family image and confirms that a
// full-stream read matches the recorded MD5/SHA-1 digests, per spec.md §6.
package main

import (
	"crypto/md5"
	"crypto/sha1"
	"flag"
	"fmt"
	"os"

	"github.com/dnpa/goewf"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("ewfverify", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "usage: ewfverify [-v] segment-file [segment-file ...]")
		return 1
	}

	logger := ewf.NewConsoleLogger(stderr, *verbose)
	h, err := ewf.OpenRead(paths, ewf.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(stderr, "ewfverify:", err)
		return ewf.CLIExitCode(err)
	}
	defer h.Close()

	mv := h.GetMediaValues()
	md5sum := md5.New()
	sha1sum := sha1.New()
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
			fmt.Fprintln(stderr, "ewfverify:", err)
			return ewf.CLIExitCode(err)
		}
		md5sum.Write(buf[:n])
		sha1sum.Write(buf[:n])
		offset += int64(n)
		if n == 0 {
			break
		}
	}

	ok := true
	if want, present := h.GetHashValue("md5"); present {
		got := fmt.Sprintf("%x", md5sum.Sum(nil))
		fmt.Fprintf(stdout, "MD5:  stored %s computed %s\n", want, got)
		ok = ok && want == got
	}
	if want, present := h.GetHashValue("sha1"); present {
		got := fmt.Sprintf("%x", sha1sum.Sum(nil))
		fmt.Fprintf(stdout, "SHA1: stored %s computed %s\n", want, got)
		ok = ok && want == got
	}
	if crcs := h.CRCErrors(); len(crcs) > 0 {
		fmt.Fprintf(stdout, "%d chunk(s) failed checksum verification\n", len(crcs))
		ok = false
	}
	if !ok {
		fmt.Fprintln(stdout, "verification FAILED")
		return 4
	}
	fmt.Fprintln(stdout, "verification OK")
	return 0
}
