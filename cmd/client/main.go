package main

import (
	"flag"
	"fmt"
	"os"

	"roomchat/internal/app"
)

func main() {
	cfg, err := app.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.ServerURL, "WebSocket URL (e.g., ws://localhost:5000/ws)")
	username := flag.String("user", cfg.Username, "display name")
	passkey := flag.String("passkey", cfg.Passkey, "shared chat passkey")
	flag.Parse()

	cfg.ServerURL = *serverURL
	cfg.Username = *username
	cfg.Passkey = *passkey
	if args := flag.Args(); len(args) >= 1 {
		cfg.Room = args[0]
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
