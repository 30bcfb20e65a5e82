package main

import (
	"flag"
	"log"

	"stakehub/config"
	"stakehub/core"
	"stakehub/rpc"
)

func main() {
	configPath := flag.String("config", "./stakehub.toml", "path to the protocol configuration file")
	listenAddr := flag.String("listen", ":8080", "JSON-RPC listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("stakehubd: load config: %v", err)
	}

	hub, err := core.NewHub(cfg)
	if err != nil {
		log.Fatalf("stakehubd: init hub: %v", err)
	}

	server := rpc.NewServer(hub)
	log.Printf("stakehubd: serving JSON-RPC on %s", *listenAddr)
	if err := server.Start(*listenAddr); err != nil {
		log.Fatalf("stakehubd: rpc server: %v", err)
	}
}
