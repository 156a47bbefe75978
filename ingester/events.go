package ingester

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds on the upstream stream.
const (
	EventKindCommit   = "commit"
	EventKindIdentity = "identity"
	EventKindAccount  = "account"
)

// Commit op actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event is the envelope for one stream frame. Exactly one of Commit,
// Identity, or Account is set, matching Kind.
type Event struct {
	Did  string `json:"did"`
	Seq  int64  `json:"seq"`
	Time string `json:"time"`
	Kind string `json:"kind"`

	Commit   *CommitEvt   `json:"commit,omitempty"`
	Identity *IdentityEvt `json:"identity,omitempty"`
	Account  *AccountEvt  `json:"account,omitempty"`
}

// CommitEvt is a single repo write: one action against one record.
type CommitEvt struct {
	Rev        string          `json:"rev"`
	Action     string          `json:"action"`
	Collection string          `json:"collection"`
	Rkey       string          `json:"rkey"`
	Cid        string          `json:"cid,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
}

type IdentityEvt struct {
	Did    string `json:"did"`
	Handle string `json:"handle,omitempty"`
}

type AccountEvt struct {
	Did    string `json:"did"`
	Active bool   `json:"active"`
	Status string `json:"status,omitempty"`
}

func parseEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("unparseable frame: %w", err)
	}

	switch evt.Kind {
	case EventKindCommit:
		if evt.Commit == nil {
			return nil, fmt.Errorf("commit frame missing commit body (seq %d)", evt.Seq)
		}
	case EventKindIdentity:
		if evt.Identity == nil {
			return nil, fmt.Errorf("identity frame missing identity body (seq %d)", evt.Seq)
		}
	case EventKindAccount:
		if evt.Account == nil {
			return nil, fmt.Errorf("account frame missing account body (seq %d)", evt.Seq)
		}
	}
	return &evt, nil
}

// eventTime parses the envelope timestamp; zero time when absent or invalid.
func (e *Event) eventTime() time.Time {
	if e.Time == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, e.Time)
	if err != nil {
		return time.Time{}
	}
	return t
}
