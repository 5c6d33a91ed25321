// Command fleetgate is the single-binary entrypoint for FleetGate: an
// OpenAI-compatible gateway that starts and stops local model backends on
// demand and proxies requests to whichever is currently routing.
package main

import "github.com/tutu-network/tutu/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
