package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saltstream/saltstream/pkg/transport"
)

const defaultPort = 8080

var (
	port         = flag.Int("port", defaultPort, "Port to listen on")
	readTimeout  = flag.Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	writeTimeout = flag.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	maxMsgKB     = flag.Int("max-msg-kb", 1024, "Maximum message size in KB")
	p2pListen    = flag.String("p2p-listen", "", "Enable p2p relaying on this multiaddr (e.g. /ip4/0.0.0.0/tcp/9000)")
	p2pPeers     = flag.String("p2p-peer", "", "Multiaddr of a p2p relay peer to mesh with")
	enableDHT    = flag.Bool("dht", false, "Enable DHT peer discovery (requires -p2p-listen)")
)

func main() {
	flag.Parse()

	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := &transport.RelayConfig{
		Port:         *port,
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
		MaxMsgSizeKB: *maxMsgKB,
	}
	bucket := transport.NewBucket()
	server := transport.NewRelayServer(bucket, config)

	if *p2pListen != "" {
		p2pConfig := &transport.P2PConfig{
			ListenAddr: *p2pListen,
			EnableDHT:  *enableDHT,
		}
		if *p2pPeers != "" {
			p2pConfig.Peers = []string{*p2pPeers}
		}
		node, err := transport.NewP2PTransport(ctx, p2pConfig)
		if err != nil {
			log.Fatalf("Failed to start p2p node: %v", err)
		}
		defer node.Close()
		for _, addr := range node.Addrs() {
			log.Printf("✓ P2P relay listening on %s", addr)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()
	log.Printf("✓ Relay server listening on port %d", *port)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
		cancel()
		if err := server.Stop(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Relay server failed: %v", err)
		}
	}
	log.Println("Relay server stopped")
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║           Saltstream Relay Node v1.0              ║")
	fmt.Println("║     sponge-authenticated streaming messages       ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}
