// Package inventory is the data layer behind the client, inventory and
// schedule screens. Each collection is stored whole under one resource key,
// so every write is a single save mutation when offline.
package inventory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/models"
	"github.com/kimhsiao/inventra/internal/store"
	syncpkg "github.com/kimhsiao/inventra/internal/sync"
)

// Repository reads and writes domain collections through a coordinator.
type Repository struct {
	coordinator *syncpkg.Coordinator
	// mu serializes read-modify-write cycles on the collections.
	mu  sync.Mutex
	now func() time.Time
	loc *time.Location
}

// NewRepository creates a Repository over coordinator.
func NewRepository(coordinator *syncpkg.Coordinator) *Repository {
	return &Repository{
		coordinator: coordinator,
		now:         time.Now,
		loc:         time.Local,
	}
}

func load[T any](r *Repository, key string) []T {
	return syncpkg.ReadResourceAs(r.coordinator, key, []T{})
}

func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// =====================================================
// Clients
// =====================================================

// ListClients returns every client, most recent last.
func (r *Repository) ListClients() []models.Client {
	return load[models.Client](r, store.KeyClients)
}

// SearchClients filters clients by name, company or email, case-insensitively.
func (r *Repository) SearchClients(term string) []models.Client {
	term = strings.TrimSpace(term)
	out := []models.Client{}
	for _, c := range r.ListClients() {
		if matches(term, c.Name, c.Company, c.Email) {
			out = append(out, c)
		}
	}
	return out
}

// AddClient validates c, assigns an ID and creation time, and appends it.
func (r *Repository) AddClient(c models.Client) (*models.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = models.NewUUID()
	c.CreatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	clients := append(r.ListClients(), c)
	if err := r.coordinator.WriteResource(store.KeyClients, clients); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteClient removes the client with id.
func (r *Repository) DeleteClient(id models.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := r.ListClients()
	kept := clients[:0]
	for _, c := range clients {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(clients) {
		return errors.Newf(errors.ErrNotFound, "client %s not found", id)
	}
	return r.coordinator.WriteResource(store.KeyClients, kept)
}

// =====================================================
// Inventory items
// =====================================================

// ListItems returns every inventory item.
func (r *Repository) ListItems() []models.InventoryItem {
	return load[models.InventoryItem](r, store.KeyInventoryItems)
}

// FilterItems filters by description, barcode, location or manufacturer and,
// when state is non-empty, by physical state.
func (r *Repository) FilterItems(term string, state models.PhysicalState) []models.InventoryItem {
	term = strings.TrimSpace(term)
	out := []models.InventoryItem{}
	for _, it := range r.ListItems() {
		if state != "" && it.PhysicalState != state {
			continue
		}
		if matches(term, it.Description, it.Barcode, it.Location, it.Manufacturer) {
			out = append(out, it)
		}
	}
	return out
}

// AddItem normalizes and validates item, then appends it.
func (r *Repository) AddItem(item models.InventoryItem) (*models.InventoryItem, error) {
	item.Normalize()
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.ID = models.NewUUID()
	item.CreatedAt = r.now().UTC()
	for i := range item.Photos {
		if item.Photos[i].ID == "" {
			item.Photos[i].ID = models.NewUUID()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	items := append(r.ListItems(), item)
	if err := r.coordinator.WriteResource(store.KeyInventoryItems, items); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes the item with id.
func (r *Repository) DeleteItem(id models.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.ListItems()
	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return errors.Newf(errors.ErrNotFound, "item %s not found", id)
	}
	return r.coordinator.WriteResource(store.KeyInventoryItems, kept)
}

// ItemStats summarizes the inventory for the dashboard.
type ItemStats struct {
	TotalItems    int `json:"totalItems"`
	TotalQuantity int `json:"totalQuantity"`
	Locations     int `json:"locations"`
	Manufacturers int `json:"manufacturers"`
}

// Stats computes dashboard counters over all items.
func (r *Repository) Stats() ItemStats {
	items := r.ListItems()
	locations := make(map[string]struct{})
	manufacturers := make(map[string]struct{})

	stats := ItemStats{TotalItems: len(items)}
	for _, it := range items {
		stats.TotalQuantity += it.TotalQuantity
		locations[it.Location] = struct{}{}
		manufacturers[it.Manufacturer] = struct{}{}
	}
	stats.Locations = len(locations)
	stats.Manufacturers = len(manufacturers)
	return stats
}

// =====================================================
// Schedules
// =====================================================

// ListSchedules returns every schedule entry.
func (r *Repository) ListSchedules() []models.ScheduleEntry {
	return load[models.ScheduleEntry](r, store.KeySchedules)
}

// SaveSchedule creates s when its ID is empty or unknown, otherwise replaces
// the stored entry keeping its creation time.
func (r *Repository) SaveSchedule(s models.ScheduleEntry) (*models.ScheduleEntry, error) {
	if s.Status == "" {
		s.Status = models.ScheduleStatusScheduled
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	s.UpdatedAt = now
	schedules := r.ListSchedules()

	replaced := false
	if s.ID != "" {
		for i := range schedules {
			if schedules[i].ID == s.ID {
				s.CreatedAt = schedules[i].CreatedAt
				schedules[i] = s
				replaced = true
				break
			}
		}
	}
	if !replaced {
		if s.ID == "" {
			s.ID = models.NewUUID()
		}
		s.CreatedAt = now
		schedules = append(schedules, s)
	}

	if err := r.coordinator.WriteResource(store.KeySchedules, schedules); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSchedule removes the entry with id.
func (r *Repository) DeleteSchedule(id models.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schedules := r.ListSchedules()
	kept := schedules[:0]
	for _, s := range schedules {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(schedules) {
		return errors.Newf(errors.ErrNotFound, "schedule %s not found", id)
	}
	return r.coordinator.WriteResource(store.KeySchedules, kept)
}

// UpdateScheduleStatus moves the entry with id to status.
func (r *Repository) UpdateScheduleStatus(id models.UUID, status models.ScheduleStatus) (*models.ScheduleEntry, error) {
	if !status.Valid() {
		return nil, errors.Newf(errors.ErrValidation, "unknown schedule status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	schedules := r.ListSchedules()
	for i := range schedules {
		if schedules[i].ID != id {
			continue
		}
		schedules[i].Status = status
		schedules[i].UpdatedAt = r.now().UTC()
		if err := r.coordinator.WriteResource(store.KeySchedules, schedules); err != nil {
			return nil, err
		}
		updated := schedules[i]
		return &updated, nil
	}
	return nil, errors.Newf(errors.ErrNotFound, "schedule %s not found", id)
}

// UpcomingSchedules returns entries still agendado, soonest first.
// Entries with a malformed date or time sort last.
func (r *Repository) UpcomingSchedules() []models.ScheduleEntry {
	out := []models.ScheduleEntry{}
	for _, s := range r.ListSchedules() {
		if s.Status == models.ScheduleStatusScheduled {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := out[i].StartsAt(r.loc)
		tj, okJ := out[j].StartsAt(r.loc)
		if okI != okJ {
			return okI
		}
		return ti.Before(tj)
	})
	return out
}

// ScheduleCounts returns the number of entries per status plus "total".
func (r *Repository) ScheduleCounts() map[string]int {
	counts := map[string]int{
		"total":                                 0,
		string(models.ScheduleStatusScheduled):  0,
		string(models.ScheduleStatusInProgress): 0,
		string(models.ScheduleStatusDone):       0,
		string(models.ScheduleStatusCancelled):  0,
	}
	for _, s := range r.ListSchedules() {
		counts["total"]++
		counts[string(s.Status)]++
	}
	return counts
}
