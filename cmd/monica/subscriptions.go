package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	subscribeURL  string
	subscribeList bool
)

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew Graph subscriptions that expire soon",
	Long: `Extend every Graph change-notification subscription that expires within
48 hours. Run it daily, or call POST /renew on the server.`,
	RunE: runRenew,
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [list-name...]",
	Short: "Subscribe the webhook to To Do list changes",
	Long: `Create a Graph subscription for each named list (default: graph.lists)
that delivers task updates to the webhook's /taskchain endpoint.

Graph validates the notification URL immediately, so the server must be
reachable before running this.

Examples:
  monica subscribe --url https://example.net/taskchain
  monica subscribe Errands --url https://example.net/taskchain
  monica subscribe --list   # show existing subscriptions`,
	RunE: runSubscribe,
}

func init() {
	subscribeCmd.Flags().StringVar(&subscribeURL, "url", "", "Notification URL (default: graph.notification_url)")
	subscribeCmd.Flags().BoolVar(&subscribeList, "list", false, "List existing subscriptions instead")
}

func runRenew(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := a.subscriptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := subs.RenewExpiring(ctx)
	if err != nil {
		return fmt.Errorf("renew subscriptions: %w", err)
	}

	for _, s := range result.Renewed {
		printStatus("✓", fmt.Sprintf("Renewed %s until %s", s.ID, s.ExpirationDateTime.Local().Format(time.RFC1123)), color.FgGreen)
	}
	if result.Skipped > 0 {
		printStatus("·", fmt.Sprintf("%d subscription(s) not due for renewal", result.Skipped), color.FgCyan)
	}
	for _, e := range result.Errors {
		printStatus("✗", e.Error(), color.FgRed)
	}
	if len(result.Errors) > 0 {
		return errors.Join(result.Errors...)
	}
	return nil
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := a.subscriptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if subscribeList {
		existing, err := subs.List(ctx)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			fmt.Println("No subscriptions.")
		}
		for _, s := range existing {
			fmt.Printf("%s  %s  expires %s\n  → %s\n", s.ID, s.Resource,
				s.ExpirationDateTime.Local().Format(time.RFC1123), s.NotificationURL)
		}
		return nil
	}

	url := subscribeURL
	if url == "" {
		url = cfg.Graph.NotificationURL
	}
	if url == "" {
		return fmt.Errorf("no notification URL: pass --url or set graph.notification_url")
	}

	lists := args
	if len(lists) == 0 {
		lists = cfg.Graph.Lists
	}

	var errs []error
	for _, name := range lists {
		s, err := subs.SubscribeList(ctx, a.todo, name, url, cfg.Server.ClientState)
		if err != nil {
			printStatus("✗", fmt.Sprintf("%s: %v", name, err), color.FgRed)
			errs = append(errs, err)
			continue
		}
		printStatus("✓", fmt.Sprintf("Subscribed %s (%s) until %s", name, s.ID,
			s.ExpirationDateTime.Local().Format(time.RFC1123)), color.FgGreen)
	}
	return errors.Join(errs...)
}
