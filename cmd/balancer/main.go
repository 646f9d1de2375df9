// Package main is the entry point for the balancer proxy.
package main

import (
	"os"

	"github.com/stacklok/balancer/cmd/balancer/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
