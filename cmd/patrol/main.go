// Patrol runs declarative natural-language browser test suites: an LLM-backed
// agent drives real browser sessions from a bounded pool, live progress
// streams to the terminal or over HTTP, and results land as structured
// reports.
package main

import "os"

func main() {
	os.Exit(Execute())
}
