package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"boxpilot/internal/config"
)

// DefaultGroupID is the id of the built-in "Default" group. It always
// exists and cannot be removed.
const DefaultGroupID = 0

// Group is a named collection of profiles, optionally backed by a
// subscription URL.
type Group struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	IsSubscription  bool   `json:"is_subscription,omitempty"`
	SubscriptionURL string `json:"subscription_url,omitempty"`
	LastUpdated     int64  `json:"last_updated,omitempty"`
}

// Entry is a stored profile plus per-entry state. The entry owns its
// profile; mutation happens in place and deletion removes the entry.
type Entry struct {
	ID        int      `json:"id"`
	GroupID   int      `json:"group_id"`
	Profile   *Profile `json:"profile"`
	LatencyMs int      `json:"latency_ms"`
	LastUsed  int64    `json:"last_used,omitempty"`

	Routing *config.RoutingSettings `json:"routing,omitempty"`
	VPN     *config.VPNSettings     `json:"vpn,omitempty"`
}

// Store keeps profiles and groups with store-assigned monotonic ids.
// Persistence is a full JSON snapshot of the directory on Save.
type Store struct {
	mu sync.RWMutex

	dir      string
	entries  map[int]*Entry
	groups   map[int]*Group
	nextID   int
	nextGrp  int
	curGroup int
}

// NewStore creates an empty store rooted at dir.
func NewStore(dir string) *Store {
	s := &Store{
		dir:     dir,
		entries: make(map[int]*Entry),
		groups:  make(map[int]*Group),
		nextID:  1,
		nextGrp: 1,
	}
	s.groups[DefaultGroupID] = &Group{ID: DefaultGroupID, Name: "Default"}
	return s
}

// Add wraps the profile in a new entry in the given group, assigning
// the next id. The profile's ID/GroupID fields are kept in sync.
func (s *Store) Add(p *Profile, groupID int) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		ID:        s.nextID,
		GroupID:   groupID,
		Profile:   p,
		LatencyMs: -1,
	}
	s.nextID++
	p.ID = entry.ID
	p.GroupID = groupID
	s.entries[entry.ID] = entry
	return entry
}

// Get returns the entry with the given id, or nil.
func (s *Store) Get(id int) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// Remove deletes an entry. Removing an unknown id is a no-op.
func (s *Store) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// AddGroup creates a group with the next group id.
func (s *Store) AddGroup(name string, isSubscription bool) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := &Group{ID: s.nextGrp, Name: name, IsSubscription: isSubscription}
	s.nextGrp++
	s.groups[g.ID] = g
	return g
}

// Group returns a group by id, or nil.
func (s *Store) Group(id int) *Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[id]
}

// TouchGroup stamps a group's last-updated time. Unknown groups are
// ignored.
func (s *Store) TouchGroup(id int, when int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return false
	}
	g.LastUpdated = when
	return true
}

// RemoveGroup deletes a group and its profiles. The default group is
// kept even when asked to remove it.
func (s *Store) RemoveGroup(id int) bool {
	if id == DefaultGroupID {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return false
	}
	for eid, e := range s.entries {
		if e.GroupID == id {
			delete(s.entries, eid)
		}
	}
	delete(s.groups, id)
	return true
}

// ClearGroup removes every profile in a group, returning the count.
func (s *Store) ClearGroup(groupID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.GroupID == groupID {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Entries returns all entries ordered by id.
func (s *Store) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// EntriesInGroup returns the group's entries ordered by id.
func (s *Store) EntriesInGroup(groupID int) []*Entry {
	var result []*Entry
	for _, e := range s.Entries() {
		if e.GroupID == groupID {
			result = append(result, e)
		}
	}
	return result
}

// Groups returns all groups ordered by id.
func (s *Store) Groups() []*Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// CurrentGroup returns the selected group id.
func (s *Store) CurrentGroup() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curGroup
}

// SetCurrentGroup selects a group.
func (s *Store) SetCurrentGroup(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curGroup = id
}

type storeMeta struct {
	NextProfileID  int `json:"next_profile_id"`
	NextGroupID    int `json:"next_group_id"`
	CurrentGroupID int `json:"current_group_id"`
}

// Save writes the full snapshot (meta, groups, profiles) to the store
// directory.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}

	meta := storeMeta{
		NextProfileID:  s.nextID,
		NextGroupID:    s.nextGrp,
		CurrentGroupID: s.curGroup,
	}
	if err := writeJSON(filepath.Join(s.dir, "meta.json"), meta); err != nil {
		return err
	}

	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	if err := writeJSON(filepath.Join(s.dir, "groups.json"), groups); err != nil {
		return err
	}

	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return writeJSON(filepath.Join(s.dir, "profiles.json"), entries)
}

// Load replaces the store contents from the snapshot directory.
// A missing snapshot leaves the store empty and is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta storeMeta
	if ok, err := readJSON(filepath.Join(s.dir, "meta.json"), &meta); err != nil {
		return err
	} else if ok {
		s.nextID = max(meta.NextProfileID, 1)
		s.nextGrp = max(meta.NextGroupID, 1)
		s.curGroup = meta.CurrentGroupID
	}

	var groups []*Group
	if ok, err := readJSON(filepath.Join(s.dir, "groups.json"), &groups); err != nil {
		return err
	} else if ok {
		s.groups = make(map[int]*Group, len(groups))
		for _, g := range groups {
			s.groups[g.ID] = g
		}
	}
	if _, ok := s.groups[DefaultGroupID]; !ok {
		s.groups[DefaultGroupID] = &Group{ID: DefaultGroupID, Name: "Default"}
	}

	var entries []*Entry
	if ok, err := readJSON(filepath.Join(s.dir, "profiles.json"), &entries); err != nil {
		return err
	} else if ok {
		s.entries = make(map[int]*Entry, len(entries))
		for _, e := range entries {
			if e.Profile == nil {
				continue
			}
			s.entries[e.ID] = e
		}
	}

	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
