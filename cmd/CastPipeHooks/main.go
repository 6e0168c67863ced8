// CastPipeHooks is the operator tool for managing the bot's Neynar webhook
// registrations and for posting test casts without starting the full service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BTreeMap/CastPipe/internal/farcaster"
	"github.com/BTreeMap/CastPipe/internal/util"
	"github.com/joho/godotenv"
)

const usage = `Usage: CastPipeHooks <command> [args]

Commands:
  list                      list registered webhooks
  setup <target-url>        remove stale mention webhooks and register one for target-url
  cleanup <target-url>      remove mention webhooks, keeping the first one matching target-url
  delete <webhook-id> [...] delete webhooks by id
  post <text>               publish a cast as the bot
  reply <cast-hash> <text>  reply to a cast as the bot

Environment: NEYNAR_API_KEY, FARCASTER_SIGNER_UUID, FARCASTER_FID (or a .env file).`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	client, err := farcaster.NewClient(
		farcaster.WithAPIKey(os.Getenv("NEYNAR_API_KEY")),
		farcaster.WithSignerUUID(os.Getenv("FARCASTER_SIGNER_UUID")),
		farcaster.WithFID(int64(util.ParseIntEnv("FARCASTER_FID", 0))),
	)
	if err != nil {
		slog.Error("Failed to create Farcaster client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, client, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *farcaster.Client, command string, args []string) error {
	switch command {
	case "list":
		hooks, err := client.ListWebhooks(ctx)
		if err != nil {
			return err
		}
		return printJSON(hooks)

	case "setup":
		if len(args) != 1 {
			return fmt.Errorf("setup requires exactly one target URL")
		}
		targetURL := args[0]
		result, err := client.CleanupWebhooks(ctx, targetURL)
		if err != nil {
			return err
		}
		if result.Preserved != nil {
			slog.Info("Existing webhook preserved, nothing to create", "webhook_id", result.Preserved.ID)
			return printJSON(result)
		}
		hook, err := client.CreateMentionsWebhook(ctx, targetURL)
		if err != nil {
			return err
		}
		slog.Info("Mention webhook registered", "webhook_id", hook.ID, "target_url", targetURL)
		return printJSON(hook)

	case "cleanup":
		if len(args) != 1 {
			return fmt.Errorf("cleanup requires exactly one target URL")
		}
		result, err := client.CleanupWebhooks(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(result)

	case "delete":
		if len(args) == 0 {
			return fmt.Errorf("delete requires at least one webhook id")
		}
		var failed []string
		for _, id := range args {
			if err := client.DeleteWebhook(ctx, id); err != nil {
				failed = append(failed, id)
				continue
			}
			slog.Info("Webhook deleted", "webhook_id", id)
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to delete webhooks: %v", failed)
		}
		return nil

	case "post":
		if len(args) != 1 {
			return fmt.Errorf("post requires exactly one text argument")
		}
		hash, err := client.PublishCast(ctx, args[0])
		if err != nil {
			return err
		}
		slog.Info("Cast published", "hash", hash)
		return printJSON(map[string]string{"hash": hash})

	case "reply":
		if len(args) != 2 {
			return fmt.Errorf("reply requires a cast hash and a text argument")
		}
		if err := client.ReplyCast(ctx, args[0], args[1]); err != nil {
			return err
		}
		slog.Info("Reply published", "parent", args[0])
		return nil

	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
