package ledger

import (
	"encoding/json"
	"time"
)

// RequestState follows Created -> Verifying -> Computing -> Committing ->
// Transferring -> Finalizing -> Success|Failed.
type RequestState uint8

const (
	StateCreated RequestState = iota
	StateVerifying
	StateComputing
	StateCommitting
	StateTransferring
	StateFinalizing
	StateSuccess
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateVerifying:
		return "Verifying"
	case StateComputing:
		return "Computing"
	case StateCommitting:
		return "Committing"
	case StateTransferring:
		return "Transferring"
	case StateFinalizing:
		return "Finalizing"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s RequestState) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Committed reports whether balances may already have been mutated.
func (s RequestState) Committed() bool {
	return s >= StateCommitting
}

type Status struct {
	Text    string    `json:"text"`
	Message string    `json:"message,omitempty"`
	Ts      time.Time `json:"ts"`
}

type Request struct {
	RequestID uint64
	UserID    uint64
	Op        Operation
	State     RequestState
	Statuses  []Status
	Reply     Reply
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Request) SetID(id uint64) { r.RequestID = id }

// AddStatus appends a progress entry.
func (r *Request) AddStatus(text, message string, now time.Time) {
	r.Statuses = append(r.Statuses, Status{Text: text, Message: message, Ts: now})
	r.UpdatedAt = now
}

type requestJSON struct {
	RequestID uint64          `json:"request_id"`
	UserID    uint64          `json:"user_id"`
	Op        json.RawMessage `json:"request"`
	State     string          `json:"state"`
	Statuses  []Status        `json:"statuses"`
	Reply     json.RawMessage `json:"reply"`
	CreatedAt time.Time       `json:"ts"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	op, err := MarshalOperation(r.Op)
	if err != nil {
		return nil, err
	}
	reply, err := MarshalReply(r.Reply)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestJSON{
		RequestID: r.RequestID,
		UserID:    r.UserID,
		Op:        op,
		State:     r.State.String(),
		Statuses:  r.Statuses,
		Reply:     reply,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var aux requestJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	op, err := UnmarshalOperation(aux.Op)
	if err != nil {
		return err
	}
	reply, err := UnmarshalReply(aux.Reply)
	if err != nil {
		return err
	}
	*r = Request{
		RequestID: aux.RequestID,
		UserID:    aux.UserID,
		Op:        op,
		State:     parseRequestState(aux.State),
		Statuses:  aux.Statuses,
		Reply:     reply,
		CreatedAt: aux.CreatedAt,
		UpdatedAt: aux.UpdatedAt,
	}
	return nil
}

func parseRequestState(s string) RequestState {
	for st := StateCreated; st <= StateFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	return StateCreated
}
