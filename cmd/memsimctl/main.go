// Command memsimctl is the interactive command shell from spec.md §6,
// grounded on original_source/simulator/cli.c's REPL loop and command
// table. All correctness (handle liveness/uniqueness) is enforced by
// the memsim core; this shell only tracks a friendlier in-process table
// of live ids for nicer error messages before calling into the core,
// mirroring cli.c's alloc_table.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alewtschuk/memsim"
)

func main() {
	initSize := flag.Uint64("init", 0, "initialize the pool with this many bytes on startup (0 = wait for 'init memory <size>')")
	algoFlag := flag.String("algo", "first", "initial allocator: first|best|worst|buddy")
	verbose := flag.Bool("v", false, "enable debug-level logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	sim := memsim.New(parseAlgo(*algoFlag), log)
	shell := &shell{sim: sim, log: log, out: os.Stdout, live: map[uint32]bool{}}

	if *initSize > 0 {
		if err := sim.Init(uintptr(*initSize)); err != nil {
			log.Fatal().Err(err).Msg("initial init failed")
		}
		fmt.Fprintf(shell.out, "initialized memory: %d bytes\n", *initSize)
	}

	shell.run(os.Stdin)
}

func parseAlgo(s string) memsim.Algo {
	switch s {
	case "best":
		return memsim.ListBest
	case "worst":
		return memsim.ListWorst
	case "buddy":
		return memsim.Buddy
	default:
		return memsim.ListFirst
	}
}

type shell struct {
	sim  *memsim.Simulator
	log  zerolog.Logger
	out  *os.File
	live map[uint32]bool
}

func (sh *shell) run(in *os.File) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(sh.out, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(sh.out, "> ")
			continue
		}
		if sh.dispatch(fields) {
			return
		}
		fmt.Fprint(sh.out, "> ")
	}
}

// dispatch handles one command line and reports whether the shell
// should exit.
func (sh *shell) dispatch(fields []string) bool {
	switch fields[0] {
	case "help":
		sh.help()
	case "init":
		sh.cmdInit(fields)
	case "set":
		sh.cmdSet(fields)
	case "malloc":
		sh.cmdMalloc(fields)
	case "free":
		sh.cmdFree(fields)
	case "read":
		sh.cmdAccess(fields, false)
	case "write":
		sh.cmdAccess(fields, true)
	case "dump":
		sh.sim.Dump(sh.out)
	case "stats":
		sh.cmdStats()
	case "cache_stats":
		sh.cmdCacheStats()
	case "shutdown":
		sh.sim.Shutdown()
		sh.live = map[uint32]bool{}
		fmt.Fprintln(sh.out, "memory shut down")
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(sh.out, "unknown command: %s (try 'help')\n", fields[0])
	}
	return false
}

func (sh *shell) help() {
	fmt.Fprintln(sh.out, "Commands:")
	fmt.Fprintln(sh.out, "  init memory <size>")
	fmt.Fprintln(sh.out, "  set allocator <first|best|worst|buddy>")
	fmt.Fprintln(sh.out, "  malloc <size>")
	fmt.Fprintln(sh.out, "  free <id>")
	fmt.Fprintln(sh.out, "  read <id> <offset>")
	fmt.Fprintln(sh.out, "  write <id> <offset>")
	fmt.Fprintln(sh.out, "  dump")
	fmt.Fprintln(sh.out, "  stats")
	fmt.Fprintln(sh.out, "  cache_stats")
	fmt.Fprintln(sh.out, "  shutdown")
	fmt.Fprintln(sh.out, "  exit | quit")
}

func (sh *shell) cmdInit(fields []string) {
	if len(fields) != 3 || fields[1] != "memory" {
		fmt.Fprintln(sh.out, "usage: init memory <size>")
		return
	}
	size, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		fmt.Fprintln(sh.out, "usage: init memory <size>")
		return
	}
	if err := sh.sim.Init(uintptr(size)); err != nil {
		fmt.Fprintf(sh.out, "init failed: %v\n", err)
		return
	}
	sh.live = map[uint32]bool{}
	fmt.Fprintf(sh.out, "initialized memory: %d bytes\n", size)
}

func (sh *shell) cmdSet(fields []string) {
	if len(fields) != 3 || fields[1] != "allocator" {
		fmt.Fprintln(sh.out, "usage: set allocator <first|best|worst|buddy>")
		return
	}
	switch fields[2] {
	case "first", "best", "worst", "buddy":
		sh.sim.SetAlgo(parseAlgo(fields[2]))
		sh.live = map[uint32]bool{}
		fmt.Fprintf(sh.out, "allocator set to %s\n", fields[2])
	default:
		fmt.Fprintln(sh.out, "usage: set allocator <first|best|worst|buddy>")
	}
}

func (sh *shell) cmdMalloc(fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(sh.out, "usage: malloc <size>")
		return
	}
	size, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		fmt.Fprintln(sh.out, "usage: malloc <size>")
		return
	}
	id, err := sh.sim.Alloc(uintptr(size))
	if err != nil {
		fmt.Fprintf(sh.out, "malloc failed: %v\n", err)
		return
	}
	addr, _ := sh.sim.Resolve(id)
	sh.live[id] = true
	fmt.Fprintf(sh.out, "id=%d address=0x%x\n", id, addr)
}

func (sh *shell) cmdFree(fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(sh.out, "usage: free <id>")
		return
	}
	id64, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		fmt.Fprintln(sh.out, "usage: free <id>")
		return
	}
	id := uint32(id64)
	if !sh.live[id] {
		fmt.Fprintf(sh.out, "free failed: unknown id %d\n", id)
		return
	}
	if err := sh.sim.Free(id); err != nil {
		fmt.Fprintf(sh.out, "free failed: %v\n", err)
		return
	}
	delete(sh.live, id)
	fmt.Fprintf(sh.out, "freed id=%d\n", id)
}

func (sh *shell) cmdAccess(fields []string, isWrite bool) {
	verb := "read"
	if isWrite {
		verb = "write"
	}
	if len(fields) != 3 {
		fmt.Fprintf(sh.out, "usage: %s <id> <offset>\n", verb)
		return
	}
	id64, err1 := strconv.ParseUint(fields[1], 10, 32)
	offset, err2 := strconv.ParseUint(fields[2], 10, 64)
	if err1 != nil || err2 != nil {
		fmt.Fprintf(sh.out, "usage: %s <id> <offset>\n", verb)
		return
	}
	id := uint32(id64)
	base, ok := sh.sim.Resolve(id)
	if !ok {
		fmt.Fprintf(sh.out, "%s failed: unknown id %d\n", verb, id)
		return
	}
	if reqSize, ok := sh.sim.RequestedSize(id); ok && offset >= uint64(reqSize) {
		fmt.Fprintf(sh.out, "%s failed: offset %d out of bounds for allocation of %d bytes\n", verb, offset, reqSize)
		return
	}
	addr := uint64(base) + offset
	if cache := sh.sim.Cache(); cache != nil {
		cache.Access(addr, isWrite)
	}
	fmt.Fprintf(sh.out, "%s id=%d offset=%d address=0x%x\n", verb, id, offset, addr)
}

func (sh *shell) cmdStats() {
	snap := sh.sim.Snapshot()
	counters := sh.sim.Counters()

	fmt.Fprintln(sh.out, "---------- SUMMARY ----------")
	fmt.Fprintf(sh.out, "Total heap size        : %d bytes\n", snap.TotalMemory)
	fmt.Fprintf(sh.out, "Used memory            : %d bytes\n", snap.UsedMemory)
	fmt.Fprintf(sh.out, "Free memory            : %d bytes\n", snap.FreeMemory)
	fmt.Fprintf(sh.out, "Used blocks            : %d\n", snap.UsedBlocks)
	fmt.Fprintf(sh.out, "Free blocks            : %d\n", snap.FreeBlocks)
	fmt.Fprintf(sh.out, "Internal fragmentation : %d bytes\n", snap.InternalFragmentation)
	fmt.Fprintf(sh.out, "External fragmentation : %.3f\n", snap.ExternalFragmentation())
	fmt.Fprintf(sh.out, "Allocator overhead     : %d bytes\n", snap.AllocatorOverhead)
	fmt.Fprintf(sh.out, "Memory utilization     : %.2f%%\n", snap.Utilization())
	fmt.Fprintf(sh.out, "Allocation requests    : %d\n", counters.AllocRequests)
	fmt.Fprintf(sh.out, "Successful allocs      : %d\n", counters.AllocSuccess)
	fmt.Fprintf(sh.out, "Failed allocs          : %d\n", counters.AllocFailure)
	fmt.Fprintf(sh.out, "Frees                  : %d\n", counters.FreeCount)
	fmt.Fprintf(sh.out, "Success rate           : %.2f%%\n", counters.SuccessRate())
	fmt.Fprintln(sh.out, "-----------------------------")
}

func (sh *shell) cmdCacheStats() {
	cache := sh.sim.Cache()
	if cache == nil {
		fmt.Fprintln(sh.out, "cache not initialized")
		return
	}
	fmt.Fprintln(sh.out, "========== CACHE STATS ==========")
	for _, lvl := range cache.Levels() {
		fmt.Fprintf(sh.out, "[%s] Hits: %d  Misses: %d  HitRate: %.2f%%\n",
			lvl.Name, lvl.Hits, lvl.Misses, lvl.HitRate())
	}
	fmt.Fprintln(sh.out, "---------------------------------")
	fmt.Fprintf(sh.out, "Total Requests : %d\n", cache.TotalRequests)
	fmt.Fprintf(sh.out, "Total Cycles   : %d\n", cache.TotalCycles)
	fmt.Fprintf(sh.out, "AMAT           : %.2f cycles\n", cache.AMAT())
	fmt.Fprintln(sh.out, "=================================")
}
