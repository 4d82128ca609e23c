//go:build ignore

// Command fake-engine simulates a perft-capable engine for integration tests.
//
// Reported node counts are len(fen) * depth so tests can predict them.
//
// The -mode flag selects a failure mode:
//
//	-mode=normal        answer everything
//	-mode=no-uciok      never answer uci
//	-mode=silent-perft  never answer perft
//	-mode=crash-perft   exit with status 3 on perft
//	-mode=ignore-quit   keep running after quit (exercises the kill path)
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	mode := flag.String("mode", "normal", "failure mode")
	flag.Parse()

	fmt.Println("Fake engine")
	fmt.Fprintln(os.Stderr, "fake-engine: stderr ready")

	position := ""
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "uci":
			if *mode == "no-uciok" {
				continue
			}
			fmt.Println("id name fake-engine")
			fmt.Println("option name Hash type spin default 64 min 1 max 1024")
			fmt.Println("uciok")
		case line == "isready":
			fmt.Println("readyok")
		case strings.HasPrefix(line, "position fen "):
			position = strings.TrimPrefix(line, "position fen ")
		case strings.HasPrefix(line, "perft "):
			fields := strings.Fields(line)
			depth, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Printf("bad depth %q\n", fields[1])
				continue
			}
			switch *mode {
			case "silent-perft":
				continue
			case "crash-perft":
				fmt.Println("info string crashing")
				os.Exit(3)
			}
			nodes := uint64(len(position)) * uint64(depth)
			fmt.Printf("depth:%d;time:7;nodes:%d;nps:0\n", depth, nodes)
		case line == "quit":
			if *mode == "ignore-quit" {
				continue
			}
			os.Exit(0)
		}
	}
	if *mode == "ignore-quit" {
		time.Sleep(time.Hour)
	}
}
