package transport

import (
	"sort"
	"time"
)

// DiscoveryRecord is one session seen while scanning.
type DiscoveryRecord struct {
	SessionID uint32
	Addr      Addr
	Advert    Advertisement
	Details   *ScanDetails
	FirstSeen time.Time
	LastSeen  time.Time

	detailsRequested bool
}

// DiscoveryTable holds sessions seen while scanning. Records not refreshed
// within the timeout are evicted; when full, the stalest record makes room.
type DiscoveryTable struct {
	capacity int
	timeout  time.Duration
	records  map[uint32]*DiscoveryRecord
}

// NewDiscoveryTable creates a table.
func NewDiscoveryTable(capacity int, timeout time.Duration) *DiscoveryTable {
	if capacity <= 0 {
		capacity = 16
	}
	return &DiscoveryTable{
		capacity: capacity,
		timeout:  timeout,
		records:  make(map[uint32]*DiscoveryRecord),
	}
}

// Observe records an advertisement. It reports whether the session is new.
func (t *DiscoveryTable) Observe(session uint32, from Addr, adv Advertisement, now time.Time) bool {
	if rec, ok := t.records[session]; ok {
		rec.Addr = from
		rec.Advert = adv
		rec.LastSeen = now
		return false
	}

	if len(t.records) >= t.capacity {
		t.evictStalest()
	}
	t.records[session] = &DiscoveryRecord{
		SessionID: session,
		Addr:      from,
		Advert:    adv,
		FirstSeen: now,
		LastSeen:  now,
	}
	return true
}

// SetDetails attaches a scan response to a known session.
func (t *DiscoveryTable) SetDetails(session uint32, d ScanDetails, now time.Time) bool {
	rec, ok := t.records[session]
	if !ok {
		return false
	}
	rec.Details = &d
	rec.LastSeen = now
	return true
}

// Expire removes records older than the timeout and returns their ids.
func (t *DiscoveryTable) Expire(now time.Time) []uint32 {
	var gone []uint32
	for id, rec := range t.records {
		if now.Sub(rec.LastSeen) > t.timeout {
			delete(t.records, id)
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	return gone
}

// Lookup returns a copy of a record.
func (t *DiscoveryTable) Lookup(session uint32) (DiscoveryRecord, bool) {
	rec, ok := t.records[session]
	if !ok {
		return DiscoveryRecord{}, false
	}
	return *rec, true
}

// List returns all records ordered by first sighting.
func (t *DiscoveryTable) List() []DiscoveryRecord {
	out := make([]DiscoveryRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// Len returns the number of records.
func (t *DiscoveryTable) Len() int {
	return len(t.records)
}

// Clear drops every record.
func (t *DiscoveryTable) Clear() {
	clear(t.records)
}

// needsDetails reports whether a scan request should be sent for session, and
// marks it as requested.
func (t *DiscoveryTable) needsDetails(session uint32) bool {
	rec, ok := t.records[session]
	if !ok || rec.Details != nil || rec.detailsRequested {
		return false
	}
	rec.detailsRequested = true
	return true
}

func (t *DiscoveryTable) evictStalest() {
	var (
		victim uint32
		oldest time.Time
		found  bool
	)
	for id, rec := range t.records {
		if !found || rec.LastSeen.Before(oldest) || (rec.LastSeen.Equal(oldest) && id < victim) {
			victim, oldest, found = id, rec.LastSeen, true
		}
	}
	if found {
		delete(t.records, victim)
	}
}
