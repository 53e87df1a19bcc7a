package outbox

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

func TestSealEnvelopeDefaults(t *testing.T) {
	env, err := sealEnvelope(DomainEvent{
		EventType: enums.EventEarningPaid,
		Data:      map[string]string{"earningId": "e-1"},
	})
	require.NoError(t, err)
	require.Equal(t, currentEnvelopeVersion, env.Version)
	require.False(t, env.OccurredAt.IsZero())
	require.Nil(t, env.Actor)
	require.JSONEq(t, `{"earningId":"e-1"}`, string(env.Data))

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, env.EventID, decoded.EventID)
}

func TestDecodeEnvelopeRejectsEmptyData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"data":null}`))
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeEnvelope([]byte(`{"version":1}`))
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestNewActorRefOmitsSystemActor(t *testing.T) {
	require.Nil(t, NewActorRef(uuid.Nil, "admin"))
	id := uuid.New()
	require.Equal(t, &ActorRef{UserID: id, Role: "agent"}, NewActorRef(id, "agent"))
}
