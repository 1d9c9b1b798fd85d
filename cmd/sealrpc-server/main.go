package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/server"
)

func main() {
	addr := flag.String("addr", ":9090", "Address to listen on")
	advertise := flag.String("advertise", "", "Published address clients bind credentials to (default ws://127.0.0.1<addr>/rpc)")
	level := flag.String("level", "session", "Security level: credential, mac, or session")
	keyPath := flag.String("key", "host.key", "Path to the host signing key file")
	flag.Parse()

	// Env fallback
	if v := os.Getenv("LISTEN_ADDR"); v != "" && !isFlagPassed("addr") {
		*addr = v
	}
	if v := os.Getenv("ADVERTISE_ADDR"); v != "" && !isFlagPassed("advertise") {
		*advertise = v
	}
	if v := os.Getenv("SECURITY_LEVEL"); v != "" && !isFlagPassed("level") {
		*level = v
	}
	if v := os.Getenv("HOST_KEY_PATH"); v != "" && !isFlagPassed("key") {
		*keyPath = v
	}

	lvl, err := server.ParseLevel(*level)
	if err != nil {
		log.Fatalf("Bad -level: %v", err)
	}

	if *advertise == "" {
		*advertise = fmt.Sprintf("ws://127.0.0.1%s/rpc", *addr)
	}

	hostKey, err := credential.LoadHostKey(*keyPath)
	if err != nil {
		log.Fatalf("Host key load failed: %v", err)
	}

	srv := server.New(server.Config{
		ListenAddr:  *addr,
		Advertise:   *advertise,
		Level:       lvl,
		Credentials: credential.NewHostSigner(hostKey, uint32(os.Getuid()), uint32(os.Getgid())),
	})

	log.Printf("Server running at address %s", *advertise)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
