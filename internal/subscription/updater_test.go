package subscription

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxpilot/internal/config"
	"boxpilot/internal/profile"
)

const testUUID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func subscriptionBody() string {
	plain := "vless://" + testUUID + "@a.example:443?security=tls#one\n" +
		"not-a-link\n" +
		"trojan://pw@b.example:443#two\n"
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

func TestUpdateReplacesGroup(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(subscriptionBody()))
	}))
	defer srv.Close()

	store := profile.NewStore(t.TempDir())
	group := store.AddGroup("remote", true)
	group.SubscriptionURL = srv.URL

	stale := profile.New(profile.TypeVLESS)
	stale.Server = "stale.example"
	stale.Port = 443
	stale.VLESS.UUID = testUUID
	store.Add(stale, group.ID)

	u := NewUpdater(store, config.SubscriptionConfig{
		UserAgent: "boxpilot/1.0",
		Timeout:   5 * time.Second,
	})

	n, err := u.Update(context.Background(), group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the unparseable line is dropped")
	assert.Equal(t, "boxpilot/1.0", gotUA)

	entries := store.EntriesInGroup(group.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Profile.Name)
	assert.Equal(t, "two", entries[1].Profile.Name)
	assert.NotZero(t, group.LastUpdated)
}

func TestUpdateKeepsGroupOnEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nothing useful here"))
	}))
	defer srv.Close()

	store := profile.NewStore(t.TempDir())
	group := store.AddGroup("remote", true)
	group.SubscriptionURL = srv.URL

	old := profile.New(profile.TypeTrojan)
	old.Server = "keep.example"
	old.Port = 443
	old.Trojan.Password = "pw"
	store.Add(old, group.ID)

	u := NewUpdater(store, config.SubscriptionConfig{Timeout: 5 * time.Second})
	_, err := u.Update(context.Background(), group.ID)
	require.Error(t, err)

	entries := store.EntriesInGroup(group.ID)
	require.Len(t, entries, 1, "a bad payload must not wipe the group")
	assert.Equal(t, "keep.example", entries[0].Profile.Server)
}

func TestUpdateRejectsNonSubscriptionGroup(t *testing.T) {
	store := profile.NewStore(t.TempDir())
	u := NewUpdater(store, config.SubscriptionConfig{})

	_, err := u.Update(context.Background(), profile.DefaultGroupID)
	assert.Error(t, err)

	_, err = u.Update(context.Background(), 42)
	assert.Error(t, err)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	u := NewUpdater(profile.NewStore(t.TempDir()), config.SubscriptionConfig{Timeout: 5 * time.Second})
	_, err := u.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
