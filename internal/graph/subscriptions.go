package graph

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"
)

// Renewal policy for change-notification subscriptions.
const (
	// RenewWithin is how close to expiry a subscription must be to renew.
	RenewWithin = 48 * time.Hour
	// RenewExtension is the new lifetime granted on renewal, the maximum
	// Graph allows for To Do task subscriptions.
	RenewExtension = 4200 * time.Minute
)

// Subscription is a Graph change-notification subscription.
type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ClientState        string    `json:"clientState,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

// RenewResult summarizes one renewal pass.
type RenewResult struct {
	Renewed []Subscription
	Skipped int
	Errors  []error
}

// Subscriptions manages change-notification subscriptions.
type Subscriptions struct {
	client *Client
	now    func() time.Time
}

// NewSubscriptions creates a subscription manager.
func NewSubscriptions(client *Client) *Subscriptions {
	return &Subscriptions{client: client, now: time.Now}
}

// List returns all subscriptions owned by the caller.
func (s *Subscriptions) List(ctx context.Context) ([]Subscription, error) {
	path := "/subscriptions"
	var subs []Subscription
	for path != "" {
		var p page[Subscription]
		if err := s.client.do(ctx, "GET", path, nil, &p); err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		subs = append(subs, p.Value...)
		path = p.NextLink
	}
	return subs, nil
}

// RenewExpiring extends every subscription expiring within RenewWithin.
// A failed renewal is collected and the pass continues with the rest.
func (s *Subscriptions) RenewExpiring(ctx context.Context) (*RenewResult, error) {
	subs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result := &RenewResult{}
	for _, sub := range subs {
		if sub.ExpirationDateTime.Sub(now) > RenewWithin {
			result.Skipped++
			continue
		}
		expires := now.Add(RenewExtension)
		patch := map[string]string{"expirationDateTime": expires.Format(time.RFC3339)}
		if err := s.client.do(ctx, "PATCH", "/subscriptions/"+url.PathEscape(sub.ID), patch, nil); err != nil {
			log.Printf("[graph] renew subscription %s failed: %v", sub.ID, err)
			result.Errors = append(result.Errors, fmt.Errorf("renew subscription %s: %w", sub.ID, err))
			continue
		}
		sub.ExpirationDateTime = expires
		result.Renewed = append(result.Renewed, sub)
		log.Printf("[graph] renewed subscription %s until %s", sub.ID, expires.Format(time.RFC3339))
	}
	return result, nil
}

// SubscribeList creates an "updated" subscription on a To Do list's tasks
// so completions are delivered to notificationURL.
func (s *Subscriptions) SubscribeList(ctx context.Context, store *TodoStore, listName, notificationURL, clientState string) (*Subscription, error) {
	listID, err := store.resolveList(ctx, listName)
	if err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", listName, err)
	}
	req := Subscription{
		Resource:           fmt.Sprintf("%s/todo/lists/%s/tasks", s.client.userPath(), listID),
		ChangeType:         "updated",
		NotificationURL:    notificationURL,
		ClientState:        clientState,
		ExpirationDateTime: s.now().UTC().Add(RenewExtension),
	}
	var created Subscription
	if err := s.client.do(ctx, "POST", "/subscriptions", req, &created); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", listName, err)
	}
	return &created, nil
}
