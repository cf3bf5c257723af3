package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"meal-subscription/internal/app"
	"meal-subscription/internal/config"
	"meal-subscription/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	config.LoadDotEnv()
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	user := fs.String("user", "demo", "User id whose subscription to use")

	out := os.Stdout
	switch cmd {
	case "status":
		fs.Parse(os.Args[2:])
		err = application.Status(ctx, out, *user)
	case "pause":
		dates := fs.String("dates", "", "Comma separated YYYY-MM-DD dates to skip")
		donate := fs.Bool("donate", false, "Donate the skipped meals")
		fs.Parse(os.Args[2:])
		err = application.Pause(ctx, out, *user, strings.Split(*dates, ","), *donate)
	case "streak":
		points := fs.Int("points", 5, "Points to add")
		fs.Parse(os.Args[2:])
		err = application.Streak(ctx, out, *user, *points)
	case "track":
		order := fs.String("order", "", "Order id to track")
		fs.Parse(os.Args[2:])
		err = application.Track(ctx, out, *user, *order)
	case "coach":
		follow := fs.String("follow", "", "Action id to record as followed")
		tip := fs.Bool("tip", false, "Ask the language model for a tip")
		fs.Parse(os.Args[2:])
		err = application.Coach(ctx, out, *user, *follow, *tip)
	case "publish-menu":
		publish := fs.Bool("publish", false, "Publish immediately instead of saving a draft")
		fs.Parse(os.Args[2:])
		err = application.PublishMenu(ctx, out, *user, *publish)
	case "impact-report":
		days := fs.Int("days", 7, "Number of days to report")
		fs.Parse(os.Args[2:])
		err = application.ImpactReport(ctx, out, *days)
	case "metrics-cleanup":
		days := fs.Int("days", app.DefaultRetentionDays, "Keep records for the last N days")
		fs.Parse(os.Args[2:])
		err = application.CleanupMetrics(ctx, out, *days)
	default:
		application.Close()
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		application.Close()
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func printUsage() {
	fmt.Println("Usage: meal-subscription <command> [-user id] [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  status           Show the subscription, impact and delivery")
	fmt.Println("  pause            Skip dates (-dates 2024-02-01,2024-02-02 [-donate])")
	fmt.Println("  streak           Add health streak points (-points N)")
	fmt.Println("  track            Simulate a delivery and follow it (-order id)")
	fmt.Println("  coach            Show nutrition advice (-tip) or record an action (-follow id)")
	fmt.Println("  publish-menu     Post the weekly menu to the vendor blog (-publish)")
	fmt.Println("  impact-report    Show daily community impact (-days N)")
	fmt.Println("  metrics-cleanup  Remove old ledger records (-days N)")
}
