package ingester

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEventCommit(t *testing.T) {
	assert := assert.New(t)

	evt, err := parseEvent([]byte(`{
		"did": "did:plc:alice",
		"seq": 42,
		"time": "2026-08-29T12:00:00Z",
		"kind": "commit",
		"commit": {
			"rev": "3k2aaa",
			"action": "create",
			"collection": "forum.barazo.topic",
			"rkey": "3k1",
			"cid": "bafyrei123",
			"record": {"title": "hello", "community": "golang"}
		}
	}`))
	assert.NoError(err)
	assert.Equal("did:plc:alice", evt.Did)
	assert.Equal(int64(42), evt.Seq)
	assert.Equal(EventKindCommit, evt.Kind)
	if assert.NotNil(evt.Commit) {
		assert.Equal(ActionCreate, evt.Commit.Action)
		assert.Equal("forum.barazo.topic", evt.Commit.Collection)
		assert.Equal("3k1", evt.Commit.Rkey)
		assert.NotEmpty(evt.Commit.Record)
	}
	assert.Equal(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), evt.eventTime())
}

func TestParseEventIdentityAndAccount(t *testing.T) {
	assert := assert.New(t)

	evt, err := parseEvent([]byte(`{"did":"did:plc:a","seq":1,"kind":"identity","identity":{"did":"did:plc:a","handle":"alice.example.com"}}`))
	assert.NoError(err)
	assert.Equal("alice.example.com", evt.Identity.Handle)

	evt, err = parseEvent([]byte(`{"did":"did:plc:a","seq":2,"kind":"account","account":{"did":"did:plc:a","active":false,"status":"takendown"}}`))
	assert.NoError(err)
	assert.False(evt.Account.Active)
	assert.Equal("takendown", evt.Account.Status)
}

func TestParseEventRejectsMismatchedBody(t *testing.T) {
	assert := assert.New(t)

	_, err := parseEvent([]byte(`{"did":"did:plc:a","seq":1,"kind":"commit"}`))
	assert.Error(err)

	_, err = parseEvent([]byte(`{"did":"did:plc:a","seq":1,"kind":"identity"}`))
	assert.Error(err)

	_, err = parseEvent([]byte(`{"did":"did:plc:a","seq":1,"kind":"account"}`))
	assert.Error(err)

	_, err = parseEvent([]byte(`not even json`))
	assert.Error(err)
}

func TestEventTimeInvalid(t *testing.T) {
	assert := assert.New(t)

	evt := &Event{Time: ""}
	assert.True(evt.eventTime().IsZero())

	evt = &Event{Time: "yesterday-ish"}
	assert.True(evt.eventTime().IsZero())
}
