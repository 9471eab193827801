// Package main はサーバーのセッションを使ってルート遷移を試すクライアントです。
//
//	navigate -base http://localhost:8080 -user alice -password secret /home /
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/yourusername/gatekeeper/internal/guard"
	"github.com/yourusername/gatekeeper/internal/navigation"
	"github.com/yourusername/gatekeeper/internal/route"
	"github.com/yourusername/gatekeeper/internal/session"
)

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base URL")
	username := flag.String("user", "", "log in as this user before navigating")
	password := flag.String("password", os.Getenv("APP_PASSWORD"), "password for -user")
	strict := flag.Bool("strict", false, "treat session check failures as navigation errors")
	timeout := flag.Duration("timeout", 5*time.Second, "timeout per session check")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{route.PathHome}
	}

	client, err := session.NewClient(*baseURL, *timeout)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	if *username != "" {
		if err := client.Login(ctx, *username, *password); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
	}

	policy := guard.FailClosed
	if *strict {
		policy = guard.FailWithError
	}
	g, err := guard.New(client, guard.WithFailurePolicy(policy), guard.WithLogger(log.Default()))
	if err != nil {
		log.Fatalf("Failed to create guard: %v", err)
	}
	nav, err := navigation.New(route.Default(nil, nil), g, navigation.WithLogger(log.Default()))
	if err != nil {
		log.Fatalf("Failed to create navigator: %v", err)
	}

	failed := false
	for _, p := range paths {
		res, err := nav.Navigate(ctx, p)
		if err != nil {
			log.Printf("%s: %v", p, err)
			failed = true
			continue
		}
		log.Printf("%s -> %s (%s) redirected=%v", p, res.Route.Path, res.Route.Name, res.Redirected)
	}
	if failed {
		os.Exit(1)
	}
}
