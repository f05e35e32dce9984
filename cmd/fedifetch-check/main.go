// Connectivity checker for the remote-fetch layer: resolves a handle,
// pulls a page of its outbox, and reports instance metadata. Exits non-zero
// when any requested check fails, so it slots into smoke-test scripts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fedifetch/internal/config"
	"fedifetch/internal/fetch"
	"fedifetch/internal/remote"
	"fedifetch/internal/safety"
	"fedifetch/internal/webfinger"
)

var (
	handle  = flag.String("handle", "", "user@domain handle to resolve")
	domain  = flag.String("domain", "", "instance domain to probe")
	postURL = flag.String("url", "", "web URL to classify and resolve")
	limit   = flag.Int("limit", 5, "outbox entries to fetch")
	timeout = flag.Duration("timeout", 30*time.Second, "overall deadline")
)

func main() {
	flag.Parse()
	config.InitLogger()

	if *handle == "" && *domain == "" && *postURL == "" {
		fmt.Fprintln(os.Stderr, "usage: fedifetch-check -handle user@domain | -domain example.social | -url https://...")
		os.Exit(2)
	}

	cfg := config.FromEnv()
	client, err := buildClient(cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := false

	if *handle != "" {
		if err := checkHandle(ctx, client, *handle, *limit); err != nil {
			slog.Error("handle check failed", "handle", *handle, "error", err)
			failed = true
		}
	}
	if *domain != "" {
		if err := checkDomain(ctx, client, *domain); err != nil {
			slog.Error("domain check failed", "domain", *domain, "error", err)
			failed = true
		}
	}
	if *postURL != "" {
		id := client.ResolveURL(ctx, *postURL)
		fmt.Printf("url:    %s\nkind:   %s\n", *postURL, id.Kind)
		if id.Handle != "" {
			fmt.Printf("handle: %s\n", id.Handle)
		}
		if id.CanonicalURI != "" {
			fmt.Printf("uri:    %s\n", id.CanonicalURI)
		}
		if id.Kind == remote.URIKindUnknown {
			failed = true
		}
	}

	stats := fetch.Snapshot()
	slog.Debug("fetch counters",
		"requests", stats.Requests,
		"retries", stats.Retries,
		"revalidated", stats.Revalidated,
		"dedupe_shared", stats.DedupeShared)

	if failed {
		os.Exit(1)
	}
}

func buildClient(cfg config.Config) (*remote.Client, error) {
	backend, err := cfg.NewBackend("fedifetch:")
	if err != nil {
		return nil, err
	}

	validator := safety.NewValidator(slog.Default())
	blocklist := safety.NewBlocklist(cfg.BlocklistEnabled, cfg.BlockedDomains)
	conditional := fetch.NewConditionalStore(backend, cfg.ConditionalTTL, slog.Default())

	invoker := fetch.NewInvoker(fetch.Config{
		Timeout:      cfg.RequestTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		UserAgent:    cfg.UserAgent,
	}, validator, blocklist, conditional, slog.Default())

	httpClient := fetch.NewClient(invoker)
	discovery := webfinger.NewClient(httpClient, backend, cfg.ActorCacheTTL)
	return remote.NewClient(httpClient, discovery, backend,
		remote.WithBatchWindow(cfg.BatchWindow),
		remote.WithInstanceTTL(cfg.InstanceCacheTTL),
	), nil
}

func checkHandle(ctx context.Context, client *remote.Client, handle string, limit int) error {
	actor, err := client.FetchActor(ctx, handle)
	if err != nil {
		return err
	}
	fmt.Printf("actor:  %s (%s)\n", actor.ID, actor.Type)
	if actor.Name != "" {
		fmt.Printf("name:   %s\n", actor.Name)
	}

	page, err := client.FetchOutbox(ctx, handle, limit)
	if err != nil {
		return err
	}
	fmt.Printf("outbox: %d entries", len(page.Items))
	if page.TotalItems != nil {
		fmt.Printf(" of %d total", *page.TotalItems)
	}
	fmt.Println()
	for _, item := range page.Items {
		text := item.PlainText
		if len(text) > 70 {
			text = text[:70] + "…"
		}
		fmt.Printf("  %s  %s\n", item.Published, text)
	}
	return nil
}

func checkDomain(ctx context.Context, client *remote.Client, domain string) error {
	info, err := client.GetInstanceInfo(ctx, domain)
	if err != nil {
		return err
	}
	fmt.Printf("instance: %s\n", info.Domain)
	if info.Title != "" {
		fmt.Printf("title:    %s\n", info.Title)
	}
	if info.SoftwareName != "" {
		fmt.Printf("software: %s %s\n", info.SoftwareName, info.Version)
	} else if info.Version != "" {
		fmt.Printf("version:  %s\n", info.Version)
	}
	if info.Users > 0 {
		fmt.Printf("users:    %d\n", info.Users)
	}
	fmt.Printf("source:   %s\n", info.Source)
	return nil
}
