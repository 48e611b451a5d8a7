// Command riskctl runs the prediction stack from the command line.
//
// Usage:
//
//	go run ./cmd/riskctl predict --lat 18.5204 --lon 73.8567 --lead-days 1,3,7
//	go run ./cmd/riskctl features --lat 18.5204 --lon 73.8567
//	go run ./cmd/riskctl predict --simulate --seed 7
//	go run ./cmd/riskctl sample --hours 168 -o fixture.json
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
