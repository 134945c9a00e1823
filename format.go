package main

import "fmt"

// statusf prints informational output to stdout unless --quiet is set.
// Data output (JSON payloads) is never routed through here.
func statusf(format string, args ...any) {
	if flagQuiet {
		return
	}

	fmt.Printf(format, args...)
}
