// Package dump renders a per-block map of the pool, grounded on
// original_source/observability/memory_dump.c's format:
// "[0xSTART - 0xEND] {FREE|USED} (N bytes)" followed by totals.
package dump

import (
	"fmt"
	"io"
)

// Block is one rendered line's worth of block information. Order is
// only meaningful for the buddy engine; list-engine callers leave
// HasOrder false and the order is omitted from the rendered line.
type Block struct {
	Start     uintptr
	End       uintptr
	Free      bool
	Size      uintptr
	HasOrder  bool
	Order     uint
}

// Write renders one line per block followed by used/free totals, in the
// exact format of the C reference's memory_dump().
func Write(w io.Writer, base uintptr, blocks []Block) {
	fmt.Fprintln(w, "========== MEMORY DUMP ==========")

	var totalUsed, totalFree uintptr
	for _, b := range blocks {
		status := "USED"
		if b.Free {
			status = "FREE"
		}
		if b.HasOrder {
			fmt.Fprintf(w, "[0x%016x - 0x%016x] %s (%d bytes, order %d)\n",
				base+b.Start, base+b.End, status, b.Size, b.Order)
		} else {
			fmt.Fprintf(w, "[0x%016x - 0x%016x] %s (%d bytes)\n",
				base+b.Start, base+b.End, status, b.Size)
		}
		if b.Free {
			totalFree += b.Size
		} else {
			totalUsed += b.Size
		}
	}

	fmt.Fprintln(w, "--------------------------------")
	fmt.Fprintf(w, "Total used memory : %d bytes\n", totalUsed)
	fmt.Fprintf(w, "Total free memory : %d bytes\n", totalFree)
}
