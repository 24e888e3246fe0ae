package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type userCreated struct {
	UserID string `json:"userId"`
}

func TestNew(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	env := New("user.created.v1", "B", "A", "session-1", map[string]any{"userId": "1"})

	assert.Equal(t, SpecVersion, env.SpecVersion)
	assert.Equal(t, DataContentType, env.DataContentType)
	assert.Equal(t, "user.created.v1", env.Type)
	assert.Equal(t, "B", env.Source)
	assert.Equal(t, "A", env.Recipient)
	assert.Equal(t, "session-1", env.SessionID)
	assert.NotEmpty(t, env.ID)
	assert.True(t, time.Time(env.Time).After(before))
	assert.False(t, env.IsBroadcast())

	other := New("user.created.v1", "B", Wildcard, "session-1", nil)
	assert.NotEqual(t, env.ID, other.ID)
	assert.True(t, other.IsBroadcast())
}

func TestFreeze(t *testing.T) {
	t.Run("payload is copied", func(t *testing.T) {
		data := map[string]any{"userId": "1", "tags": []any{"a"}}
		env := New("user.created.v1", "B", "A", "s", data)

		frozen := Freeze(env)
		frozen.Data.(map[string]any)["userId"] = "mutated"
		frozen.Data.(map[string]any)["tags"].([]any)[0] = "z"

		assert.Equal(t, "1", data["userId"])
		assert.Equal(t, "a", data["tags"].([]any)[0])
	})

	t.Run("nil payload", func(t *testing.T) {
		env := New("user.created.v1", "B", "A", "s", nil)
		assert.Equal(t, env, Freeze(env))
	})

	t.Run("struct payloads keep every field", func(t *testing.T) {
		now := time.Now()
		tests := []struct {
			name string
			data any
		}{
			{"exported fields", userCreated{UserID: "1"}},
			{"unexported fields", order{ID: "o-1", note: "secret", At: now}},
			{"time field", stamped{At: now}},
			{"pointer to unexported fields", &order{ID: "o-2", note: "secret", At: now}},
			{"nested unexported fields", map[string]any{"order": order{ID: "o-3", note: "secret"}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := New("order.placed.v1", "B", "A", "s", tt.data)
				assert.Equal(t, tt.data, Freeze(env).Data)
			})
		}
	})

	t.Run("pointer payload is copied", func(t *testing.T) {
		data := &userCreated{UserID: "1"}
		frozen := Freeze(New("user.created.v1", "B", "A", "s", data))

		copied, ok := frozen.Data.(*userCreated)
		require.True(t, ok)
		assert.NotSame(t, data, copied)
		copied.UserID = "mutated"
		assert.Equal(t, "1", data.UserID)
	})

	t.Run("unexported fields are shared", func(t *testing.T) {
		data := &order{ID: "o-1", note: "secret"}
		frozen := Freeze(New("order.placed.v1", "B", "A", "s", data))
		assert.Same(t, data, frozen.Data)
	})
}

type order struct {
	ID   string
	note string
	At   time.Time
}

type stamped struct {
	At time.Time
}

func TestEnvelopeJSON(t *testing.T) {
	ts, err := strfmt.ParseDateTime("2024-05-01T10:00:00.000Z")
	require.NoError(t, err)

	env := Envelope{
		SpecVersion:     SpecVersion,
		Type:            "user.created.v1",
		Source:          "B",
		ID:              "evt-1",
		Time:            ts,
		DataContentType: DataContentType,
		Data:            userCreated{UserID: "1"},
		Recipient:       "A",
		SessionID:       "session-1",
	}

	t.Run("marshal", func(t *testing.T) {
		data, err := env.MarshalJSON()
		require.NoError(t, err)

		result := gjson.ParseBytes(data)
		assert.Equal(t, "1.0", result.Get("specversion").String())
		assert.Equal(t, "user.created.v1", result.Get("type").String())
		assert.Equal(t, "B", result.Get("source").String())
		assert.Equal(t, "evt-1", result.Get("id").String())
		assert.Equal(t, "2024-05-01T10:00:00.000Z", result.Get("time").String())
		assert.Equal(t, "application/json", result.Get("datacontenttype").String())
		assert.Equal(t, "1", result.Get("data.userId").String())
		assert.Equal(t, "A", result.Get(ExtRecipient).String())
		assert.Equal(t, "session-1", result.Get(ExtSessionID).String())
	})

	t.Run("round trip", func(t *testing.T) {
		data, err := env.MarshalJSON()
		require.NoError(t, err)

		var decoded Envelope
		require.NoError(t, decoded.UnmarshalJSON(data))

		assert.Equal(t, env.Type, decoded.Type)
		assert.Equal(t, env.Source, decoded.Source)
		assert.Equal(t, env.ID, decoded.ID)
		assert.Equal(t, env.Recipient, decoded.Recipient)
		assert.Equal(t, env.SessionID, decoded.SessionID)
		assert.True(t, time.Time(env.Time).Equal(time.Time(decoded.Time)))
		assert.Equal(t, map[string]any{"userId": "1"}, decoded.Data)
	})

	t.Run("nil data is omitted", func(t *testing.T) {
		e := env
		e.Data = nil
		data, err := e.MarshalJSON()
		require.NoError(t, err)
		assert.False(t, gjson.GetBytes(data, "data").Exists())

		var decoded Envelope
		require.NoError(t, decoded.UnmarshalJSON(data))
		assert.Nil(t, decoded.Data)
	})

	t.Run("unmarshal errors", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"invalid json", "invalid"},
			{"missing specversion", `{"type":"t","source":"s","id":"1"}`},
			{"unsupported specversion", `{"specversion":"0.3","type":"t","source":"s","id":"1"}`},
			{"missing type", `{"specversion":"1.0","source":"s","id":"1"}`},
			{"missing source", `{"specversion":"1.0","type":"t","id":"1"}`},
			{"missing id", `{"specversion":"1.0","type":"t","source":"s"}`},
			{"invalid time", `{"specversion":"1.0","type":"t","source":"s","id":"1","time":"yesterday"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var e Envelope
				err := e.UnmarshalJSON([]byte(tt.input))
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedEnvelope))
			})
		}
	})
}

func TestResultJSON(t *testing.T) {
	res := Ack("Event delivered and handled by 'A'").WithClient("A").WithData(map[string]any{"ok": true})

	data, err := MarshalResult("evt-1", res)
	require.NoError(t, err)
	assert.True(t, IsResult(data))

	ref, decoded, err := UnmarshalResult(data)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ref)
	assert.Equal(t, ACK, decoded.Status)
	assert.Equal(t, "A", decoded.ClientID)
	assert.Equal(t, res.Message, decoded.Message)
	assert.Equal(t, map[string]any{"ok": true}, decoded.Data)

	envData, err := New("t", "s", "r", "x", nil).MarshalJSON()
	require.NoError(t, err)
	assert.False(t, IsResult(envData))

	_, _, err = UnmarshalResult([]byte(`{"status":"MAYBE","ref":"1"}`))
	assert.Error(t, err)
}

func TestDeliveryResult(t *testing.T) {
	ack := Ack("fine")
	assert.True(t, ack.OK())
	assert.Equal(t, ACK, ack.Status)
	assert.False(t, time.Time(ack.Timestamp).IsZero())

	nack := Nack("nope").WithClient("A")
	assert.False(t, nack.OK())
	assert.Equal(t, "A", nack.ClientID)
	assert.Nil(t, nack.Data)
}

func TestDefinition(t *testing.T) {
	def := Define[userCreated]("user.created.v1")
	assert.Equal(t, "user.created.v1", def.Name())
	assert.Equal(t, userCreated{}, def.Prototype())

	t.Run("decode typed payload", func(t *testing.T) {
		ev, err := def.Decode(New(def.Name(), "B", "A", "s", userCreated{UserID: "1"}))
		require.NoError(t, err)
		assert.Equal(t, "1", ev.Payload.UserID)
		assert.Equal(t, "B", ev.Source)
	})

	t.Run("decode relayed payload", func(t *testing.T) {
		ev, err := def.Decode(New(def.Name(), "B", "A", "s", map[string]any{"userId": "2"}))
		require.NoError(t, err)
		assert.Equal(t, "2", ev.Payload.UserID)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := def.Decode(New("order.placed.v1", "B", "A", "s", nil))
		assert.Error(t, err)
	})

	t.Run("handler", func(t *testing.T) {
		h := def.Handler(func(_ context.Context, ev Event[userCreated]) (any, error) {
			return "hello " + ev.Payload.UserID, nil
		})
		v, err := h.Handle(context.Background(), New(def.Name(), "B", "A", "s", userCreated{UserID: "3"}))
		require.NoError(t, err)
		assert.Equal(t, "hello 3", v)

		_, err = h.Handle(context.Background(), New(def.Name(), "B", "A", "s", "garbage"))
		assert.Error(t, err)
	})
}

func TestCatalog(t *testing.T) {
	userDef := Define[userCreated]("user.created.v1")
	orderDef := Define[map[string]any]("order.placed.v1")

	c := NewCatalog(userDef, orderDef)
	assert.True(t, c.Has("user.created.v1"))
	assert.False(t, c.Has("nope"))

	d, ok := c.Lookup("order.placed.v1")
	require.True(t, ok)
	assert.Equal(t, "order.placed.v1", d.Name())

	descs := c.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "user.created.v1", descs[0].Name())
	assert.Equal(t, "order.placed.v1", descs[1].Name())

	assert.Error(t, c.Register(userDef))
	assert.Error(t, c.Register(Define[string]("")))
	assert.Panics(t, func() { NewCatalog(userDef, userDef) })
}
