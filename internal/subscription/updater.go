// Package subscription fetches remote share-link lists and syncs them
// into profile groups.
package subscription

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"boxpilot/internal/config"
	"boxpilot/internal/link"
	"boxpilot/internal/logger"
	"boxpilot/internal/profile"
)

// Updater downloads subscription payloads and replaces the contents of
// subscription-backed groups.
type Updater struct {
	store *profile.Store
	cfg   config.SubscriptionConfig
}

func NewUpdater(store *profile.Store, cfg config.SubscriptionConfig) *Updater {
	return &Updater{store: store, cfg: cfg}
}

// Fetch downloads a subscription payload.
func (u *Updater) Fetch(ctx context.Context, url string) (string, error) {
	timeout := u.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if u.cfg.Insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if u.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", u.cfg.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("subscription returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read subscription body: %w", err)
	}
	return string(body), nil
}

// Update refreshes one subscription group: fetch, parse, replace the
// group's profiles and stamp the update time. Returns the number of
// profiles added.
func (u *Updater) Update(ctx context.Context, groupID int) (int, error) {
	group := u.store.Group(groupID)
	if group == nil {
		return 0, fmt.Errorf("group %d does not exist", groupID)
	}
	if !group.IsSubscription || group.SubscriptionURL == "" {
		return 0, fmt.Errorf("group %q is not a subscription", group.Name)
	}

	body, err := u.Fetch(ctx, group.SubscriptionURL)
	if err != nil {
		return 0, err
	}

	profiles := link.ParseSubscription(body)
	if len(profiles) == 0 {
		// Keep the old contents rather than wiping the group on a bad
		// payload.
		return 0, fmt.Errorf("subscription for group %q yielded no profiles", group.Name)
	}

	removed := u.store.ClearGroup(groupID)
	for _, p := range profiles {
		u.store.Add(p, groupID)
	}
	u.store.TouchGroup(groupID, time.Now().Unix())

	logger.Log.Infof("Group %q updated: %d profiles (%d replaced)", group.Name, len(profiles), removed)

	if err := u.store.Save(); err != nil {
		return len(profiles), fmt.Errorf("save store: %w", err)
	}
	return len(profiles), nil
}

// UpdateAll refreshes every subscription group, continuing past
// failures. Returns the total number of profiles added.
func (u *Updater) UpdateAll(ctx context.Context) int {
	total := 0
	for _, g := range u.store.Groups() {
		if !g.IsSubscription || g.SubscriptionURL == "" {
			continue
		}
		n, err := u.Update(ctx, g.ID)
		if err != nil {
			logger.Log.Warnf("Updating group %q failed: %v", g.Name, err)
			continue
		}
		total += n
	}
	return total
}
