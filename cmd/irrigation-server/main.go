package main

import (
	"flag"
	"log/slog"
	"os"

	_ "net/http/pprof"

	"github.com/KyleBrandon/irrigation-server/pkg/server"
	_ "github.com/lib/pq"
)

func main() {
	// parse the command-line flags
	flag.Parse()

	if err := server.InitializeServer(); err != nil {
		slog.Error("failed to start the irrigation server", "error", err)
		os.Exit(1)
	}
}
