package models

// DialogueState is the turn-taking state of one side of a dialogue.
type DialogueState string

const (
	StateWaitingForPartner DialogueState = "waiting_for_partner"
	StateWaitingForReply   DialogueState = "waiting_for_reply"
	StateMyTurn            DialogueState = "my_turn"
	StateDialogueEnd       DialogueState = "dialogue_end"
)

// Terminal reports whether no further sends are expected in this state.
func (s DialogueState) Terminal() bool {
	return s == StateDialogueEnd
}

// AgentState is the persisted dialogue state of a single agent. It is
// written only by the agent it describes and read by its partner; readers
// must tolerate a missing or half-written record.
type AgentState struct {
	ClientID    string        `json:"client_id"`
	PartnerID   string        `json:"partner_id,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	State       DialogueState `json:"state"`
	TurnCounter int           `json:"turn_counter"`
	Watermark   int64         `json:"watermark"` // created_at of the last consumed message
	UpdatedAt   int64         `json:"updated_at"`
}
