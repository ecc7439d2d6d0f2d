package domain

import (
	"fmt"
	"sync/atomic"
)

// Recipient is an addressable patrol unit on the messaging platform.
type Recipient struct {
	// ID is the platform's internal user id.
	ID string `json:"id"`
	// Name is the display name ("Guarnição 01").
	Name string `json:"name"`
	// Code is the short ordinal shown on the selection grid.
	Code string `json:"number"`
}

// DefaultRecipients is the unit roster used when none is configured.
func DefaultRecipients() []Recipient {
	return []Recipient{
		{ID: "355067", Name: "Guarnição 01", Code: "01"},
		{ID: "356052", Name: "Guarnição 02", Code: "02"},
		{ID: "356053", Name: "Guarnição 03", Code: "03"},
		{ID: "356054", Name: "Guarnição 04", Code: "04"},
		{ID: "356055", Name: "Guarnição 05", Code: "05"},
		{ID: "356056", Name: "Guarnição 06", Code: "06"},
		{ID: "356057", Name: "Guarnição 07", Code: "07"},
		{ID: "356058", Name: "Guarnição 08", Code: "08"},
		{ID: "356059", Name: "Guarnição 09", Code: "09"},
		{ID: "356060", Name: "Guarnição 10", Code: "10"},
	}
}

// Roster is an immutable, ordered set of recipients.
type Roster struct {
	recipients []Recipient
	byID       map[string]int
}

// NewRoster builds a roster. Ids must be non-empty and unique.
func NewRoster(recipients []Recipient) (*Roster, error) {
	r := &Roster{
		recipients: make([]Recipient, 0, len(recipients)),
		byID:       make(map[string]int, len(recipients)),
	}
	for _, rc := range recipients {
		if rc.ID == "" {
			return nil, fmt.Errorf("recipient %q has no id", rc.Name)
		}
		if _, dup := r.byID[rc.ID]; dup {
			return nil, fmt.Errorf("duplicate recipient id %q", rc.ID)
		}
		r.byID[rc.ID] = len(r.recipients)
		r.recipients = append(r.recipients, rc)
	}
	return r, nil
}

// All returns the recipients in configured order.
func (r *Roster) All() []Recipient {
	out := make([]Recipient, len(r.recipients))
	copy(out, r.recipients)
	return out
}

// Len returns the number of recipients.
func (r *Roster) Len() int { return len(r.recipients) }

// Lookup finds a recipient by id.
func (r *Roster) Lookup(id string) (Recipient, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Recipient{}, false
	}
	return r.recipients[i], true
}

// DisplayName returns the recipient's name, or the id itself when unknown.
func (r *Roster) DisplayName(id string) string {
	if rc, ok := r.Lookup(id); ok && rc.Name != "" {
		return rc.Name
	}
	return id
}

// RosterHolder publishes the current roster to concurrent readers and lets
// a config reload swap it in one step.
type RosterHolder struct {
	current atomic.Pointer[Roster]
}

// NewRosterHolder returns a holder initialised with r.
func NewRosterHolder(r *Roster) *RosterHolder {
	h := &RosterHolder{}
	h.current.Store(r)
	return h
}

// Roster returns the current roster.
func (h *RosterHolder) Roster() *Roster {
	return h.current.Load()
}

// Store replaces the roster.
func (h *RosterHolder) Store(r *Roster) {
	h.current.Store(r)
}
