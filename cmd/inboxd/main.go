package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/inboxmirror/inboxd/internal/config"
	"github.com/inboxmirror/inboxd/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}
