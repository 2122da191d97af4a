// Package roster holds the ordered participant list of a roulette session.
//
// Every mutator reports whether it changed anything. Invalid input (empty
// names, duplicate names on add, unknown keys) is ignored rather than
// returned as an error.
package roster

import (
	"github.com/google/uuid"

	"roulette/internal/models"
)

// Direction selects the neighbour a participant is swapped with by Move.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Roster is an ordered collection of participants.
// It is not safe for concurrent use.
type Roster struct {
	participants []*models.Participant
	newKey       func() string
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{newKey: uuid.NewString}
}

// FromRecords rebuilds a roster from persisted participants, keeping their
// order and assigning fresh local keys.
func FromRecords(records []models.RouletteParticipant) *Roster {
	r := New()
	for i, rec := range records {
		id := rec.ID
		r.participants = append(r.participants, &models.Participant{
			ID:              &id,
			LocalKey:        r.newKey(),
			ParticipantName: rec.ParticipantName,
			Emoji:           rec.Emoji,
			IsHit:           rec.IsHit,
			Position:        i,
		})
	}
	return r
}

// Len returns the number of participants.
func (r *Roster) Len() int { return len(r.participants) }

// Participants returns a copy of the roster in order.
func (r *Roster) Participants() []models.Participant {
	out := make([]models.Participant, len(r.participants))
	for i, p := range r.participants {
		out[i] = clone(p)
	}
	return out
}

// At returns a copy of the participant at index i.
func (r *Roster) At(i int) (models.Participant, bool) {
	if i < 0 || i >= len(r.participants) {
		return models.Participant{}, false
	}
	return clone(r.participants[i]), true
}

// Index returns the position of the participant with localKey, or -1.
func (r *Roster) Index(localKey string) int {
	for i, p := range r.participants {
		if p.LocalKey == localKey {
			return i
		}
	}
	return -1
}

// Get returns a copy of the participant with localKey.
func (r *Roster) Get(localKey string) (models.Participant, bool) {
	return r.At(r.Index(localKey))
}

// Candidates returns the indices of participants that have not been hit.
func (r *Roster) Candidates() []int {
	var out []int
	for i, p := range r.participants {
		if !p.IsHit {
			out = append(out, i)
		}
	}
	return out
}

// Add appends a participant with the default emoji. Empty names and names
// already present in the roster are rejected.
func (r *Roster) Add(name string) bool {
	if name == "" {
		return false
	}
	for _, p := range r.participants {
		if p.ParticipantName == name {
			return false
		}
	}
	r.participants = append(r.participants, &models.Participant{
		LocalKey:        r.newKey(),
		ParticipantName: name,
		Emoji:           models.DefaultEmoji,
		Position:        len(r.participants),
	})
	return true
}

// Remove deletes the participant with localKey. Positions of the remaining
// participants are left as they are until the next Move or Renumber.
func (r *Roster) Remove(localKey string) bool {
	i := r.Index(localKey)
	if i < 0 {
		return false
	}
	r.participants = append(r.participants[:i], r.participants[i+1:]...)
	return true
}

// Rename overwrites the participant name. Uniqueness is not re-checked.
func (r *Roster) Rename(localKey, name string) bool {
	if name == "" {
		return false
	}
	p := r.find(localKey)
	if p == nil || p.ParticipantName == name {
		return false
	}
	p.ParticipantName = name
	return true
}

// SetEmoji overwrites the participant emoji.
func (r *Roster) SetEmoji(localKey, emoji string) bool {
	if emoji == "" {
		return false
	}
	p := r.find(localKey)
	if p == nil || p.Emoji == emoji {
		return false
	}
	p.Emoji = emoji
	return true
}

// ToggleHit flips the hit flag of the participant.
func (r *Roster) ToggleHit(localKey string) bool {
	p := r.find(localKey)
	if p == nil {
		return false
	}
	p.IsHit = !p.IsHit
	return true
}

// SetHit sets the hit flag of the participant.
func (r *Roster) SetHit(localKey string, hit bool) bool {
	p := r.find(localKey)
	if p == nil || p.IsHit == hit {
		return false
	}
	p.IsHit = hit
	return true
}

// ClearHits marks every participant as not hit.
func (r *Roster) ClearHits() bool {
	changed := false
	for _, p := range r.participants {
		if p.IsHit {
			p.IsHit = false
			changed = true
		}
	}
	return changed
}

// Move swaps the participant with its neighbour in direction dir and
// renumbers positions. Moving the first participant up or the last one
// down does nothing.
func (r *Roster) Move(localKey string, dir Direction) bool {
	i := r.Index(localKey)
	if i < 0 {
		return false
	}
	var j int
	switch dir {
	case Up:
		j = i - 1
	case Down:
		j = i + 1
	default:
		return false
	}
	if j < 0 || j >= len(r.participants) {
		return false
	}
	r.participants[i], r.participants[j] = r.participants[j], r.participants[i]
	r.Renumber()
	return true
}

// Renumber sets every position to its current index.
func (r *Roster) Renumber() {
	for i, p := range r.participants {
		p.Position = i
	}
}

// AssignIDs records durable ids for the given local keys. Keys no longer in
// the roster are skipped.
func (r *Roster) AssignIDs(ids map[string]int64) {
	for key, id := range ids {
		if p := r.find(key); p != nil {
			v := id
			p.ID = &v
		}
	}
}

func (r *Roster) find(localKey string) *models.Participant {
	if i := r.Index(localKey); i >= 0 {
		return r.participants[i]
	}
	return nil
}

func clone(p *models.Participant) models.Participant {
	out := *p
	if p.ID != nil {
		id := *p.ID
		out.ID = &id
	}
	return out
}
