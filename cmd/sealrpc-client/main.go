package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/keaganluttrell/sealrpc/client"
	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/server"
)

func main() {
	addr := flag.String("server", "ws://127.0.0.1:9090/rpc", "Server address")
	level := flag.String("level", "session", "Security level: credential, mac, or session")
	keyPath := flag.String("key", "host.key", "Path to the host signing key file")
	flag.Parse()

	if v := os.Getenv("SERVER_ADDR"); v != "" && !isFlagPassed("server") {
		*addr = v
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

	hostKey, err := credential.LoadHostKey(*keyPath)
	if err != nil {
		log.Fatalf("Host key load failed: %v", err)
	}
	uid := uint32(os.Getuid())
	cred := credential.NewHostSigner(hostKey, uid, uint32(os.Getgid()))

	ctx := context.Background()
	conn, err := client.Dial(ctx, *addr)
	if err != nil {
		log.Fatalf("Could not connect: %v", err)
	}
	defer conn.Close()

	names := []string{"alice", "bob", "charlie"}

	switch lvl {
	case server.LevelCredential:
		for _, name := range names {
			greeting, err := client.HelloWithCredential(ctx, conn, cred, name)
			if err != nil {
				log.Fatalf("hello(%q) failed: %v", name, err)
			}
			log.Print(greeting)
		}

	case server.LevelMAC:
		sess := client.NewMACSession(conn, cred, uid)
		if err := sess.Authenticate(ctx); err != nil {
			log.Fatalf("Could not authenticate: %v", err)
		}
		for _, name := range names {
			greeting, err := sess.Hello(ctx, name)
			if err != nil {
				log.Fatalf("hello(%q) failed: %v", name, err)
			}
			log.Print(greeting)
		}

	case server.LevelSession:
		sess := client.NewSessionHandle(conn, cred)
		if err := sess.Authenticate(ctx, *addr); err != nil {
			log.Fatalf("Could not authenticate: %v", err)
		}
		log.Printf("Established session %x", sess.SessionID())
		for _, name := range names {
			greeting, err := sess.Hello(ctx, name)
			if err != nil {
				log.Fatalf("hello(%q) failed: %v", name, err)
			}
			log.Print(greeting)
		}
		if err := sess.Close(ctx); err != nil {
			log.Fatalf("Could not close session: %v", err)
		}
		log.Print("Session closed")
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
