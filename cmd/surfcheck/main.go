// surfcheck builds a filter from a sorted key file, writes it to disk, and
// verifies the on-disk copy answers every key.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/booknouse/go-surf/pkg/surf"
)

func main() {
	keyFile := flag.String("keys", "", "file with one key per line, sorted ascending")
	out := flag.String("out", "filter.surf", "output filter file")
	suffixBits := flag.Uint("suffix-bits", 8, "real suffix bits per leaf (0 = none)")
	flag.Parse()

	if *keyFile == "" {
		fmt.Fprintln(os.Stderr, "usage: surfcheck -keys sorted.txt [-out filter.surf] [-suffix-bits n]")
		os.Exit(2)
	}

	keys, err := readKeys(*keyFile)
	if err != nil {
		log.Fatalf("read keys: %v", err)
	}

	opts := surf.DefaultOptions()
	opts.Logger = surf.NewDefaultLoggerWithLevel(0)
	if *suffixBits > 0 {
		opts.SuffixKind = surf.SuffixReal
		opts.RealSuffixLen = uint32(*suffixBits)
	}

	filter, err := surf.Build(keys, opts)
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	fmt.Printf("built: %d keys, height=%d, sparseStart=%d, %d bytes\n",
		len(keys), filter.Height(), filter.SparseStartLevel(), filter.SerializedSize())

	if err := filter.WriteFile(*out); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}

	reloaded, err := surf.OpenFile(*out)
	if err != nil {
		log.Fatalf("reload %s: %v", *out, err)
	}
	for i, k := range keys {
		if !reloaded.Lookup(k) {
			log.Fatalf("key %d (%q) missing after reload", i, k)
		}
	}
	fmt.Printf("verified: all %d keys answered by %s\n", len(keys), *out)
}

func readKeys(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		keys = append(keys, []byte(line))
	}
	return keys, sc.Err()
}
