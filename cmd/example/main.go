package main

import (
	"fmt"
	"log"

	"github.com/booknouse/go-surf/pkg/surf"
)

func main() {
	keys := [][]byte{
		[]byte("apple"),
		[]byte("application"),
		[]byte("banana"),
		[]byte("cherry"),
		[]byte("grape"),
		[]byte("grapefruit"),
		[]byte("orange"),
	}

	opts := surf.DefaultOptions()
	opts.SuffixKind = surf.SuffixReal
	opts.RealSuffixLen = 8

	filter, err := surf.Build(keys, opts)
	if err != nil {
		log.Fatalf("build filter: %v", err)
	}

	fmt.Printf("built filter: height=%d sparseStart=%d bytes=%d\n",
		filter.Height(), filter.SparseStartLevel(), filter.SerializedSize())

	// Point queries.
	for _, probe := range []string{"banana", "blueberry", "grape"} {
		fmt.Printf("lookup %-12q -> %v\n", probe, filter.Lookup([]byte(probe)))
	}

	// Range queries.
	fmt.Printf("range [cherry, grape]   -> %v\n",
		filter.LookupRange([]byte("cherry"), true, []byte("grape"), true))
	fmt.Printf("range (kiwi, mango)     -> %v\n",
		filter.LookupRange([]byte("kiwi"), false, []byte("mango"), false))
	fmt.Printf("approx count (apple, orange) -> %d\n",
		filter.ApproxCount([]byte("apple"), []byte("orange")))

	// Ordered iteration over the stored key prefixes.
	fmt.Println("stored keys:")
	for it := filter.MoveToFirst(); it.Valid(); it.Next() {
		fmt.Printf("  %q\n", it.KeyWithSuffix())
	}
}
