package models

// DefaultEmoji is assigned to participants added without an explicit emoji.
const DefaultEmoji = "😊"

// Participant is one entry of a roulette roster.
// LocalKey addresses the participant inside a running session; ID is only
// set once the participant has been persisted.
type Participant struct {
	ID              *int64 `json:"id,omitempty"`
	LocalKey        string `json:"localKey"`
	ParticipantName string `json:"participantName"`
	Emoji           string `json:"emoji"`
	IsHit           bool   `json:"isHit"`
	Position        int    `json:"position"`
}

// Roulette is the durable record addressed by an opaque hash.
type Roulette struct {
	ID              int64  `json:"id"`
	Hash            string `json:"hash"`
	AutoSaveEnabled bool   `json:"autoSaveEnabled"`
}

// RouletteParticipant is the durable record of one participant.
// Position is nullable for rows written before ordering existed.
type RouletteParticipant struct {
	ID              int64  `json:"id"`
	RouletteID      int64  `json:"rouletteId"`
	ParticipantName string `json:"participantName"`
	Emoji           string `json:"emoji"`
	IsHit           bool   `json:"isHit"`
	Position        *int   `json:"position"`
}

// RouletteView is a roulette together with its ordered participants,
// as returned by a load.
type RouletteView struct {
	Roulette
	Participants []RouletteParticipant `json:"participants"`
}

// SaveParticipant is one participant in a save request.
type SaveParticipant struct {
	ID              *int64 `json:"id,omitempty"`
	ParticipantName string `json:"participantName" binding:"required,min=1,max=256"`
	Emoji           string `json:"emoji" binding:"required,min=1,max=16"`
	IsHit           bool   `json:"isHit"`
}

// SaveRequest creates a roulette when Hash is empty and updates the
// roulette addressed by Hash otherwise.
type SaveRequest struct {
	Hash            string            `json:"hash,omitempty"`
	AutoSaveEnabled *bool             `json:"autoSaveEnabled,omitempty"`
	Participants    []SaveParticipant `json:"participants" binding:"dive"`
}

// SaveResult reports the persisted roulette. ParticipantIDs holds the
// durable id of every request participant, in request order.
type SaveResult struct {
	Hash           string  `json:"hash"`
	ID             int64   `json:"id"`
	ParticipantIDs []int64 `json:"participantIds"`
}
