package tokens

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *Codec {
	return &Codec{
		Secret:        []byte("test-secret"),
		AccessExpire:  30 * time.Minute,
		RefreshExpire: 7 * 24 * time.Hour,
	}
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	codec := newTestCodec()
	userID := uuid.NewString()

	token, exp, err := codec.Issue(userID, "alice", "LAB_ASSISTANT", TypeAccess)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(codec.AccessExpire), exp, 5*time.Second)

	claims, err := codec.Decode(token, TypeAccess)
	require.NoError(t, err)
	require.Equal(t, userID, claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "LAB_ASSISTANT", claims.Role)
	require.Equal(t, TypeAccess, claims.Type)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
}

func TestIssueRequiresSubject(t *testing.T) {
	codec := newTestCodec()

	_, _, err := codec.Issue("", "alice", "ADMIN", TypeAccess)
	require.ErrorIs(t, err, ErrMissingSubject)
}

func TestDecodeTypeMismatch(t *testing.T) {
	codec := newTestCodec()

	refresh, _, err := codec.Issue(uuid.NewString(), "alice", "ADMIN", TypeRefresh)
	require.NoError(t, err)

	_, err = codec.Decode(refresh, TypeAccess)
	require.ErrorIs(t, err, ErrTypeMismatch)

	access, _, err := codec.Issue(uuid.NewString(), "alice", "ADMIN", TypeAccess)
	require.NoError(t, err)

	_, err = codec.Decode(access, TypeRefresh)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecodeExpired(t *testing.T) {
	codec := newTestCodec()
	codec.AccessExpire = -time.Minute

	token, _, err := codec.Issue(uuid.NewString(), "alice", "ADMIN", TypeAccess)
	require.NoError(t, err)

	_, err = codec.Decode(token, TypeAccess)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestDecodeMalformed(t *testing.T) {
	codec := newTestCodec()

	_, err := codec.Decode("not-a-token", TypeAccess)
	require.ErrorIs(t, err, ErrMalformedToken)

	token, _, err := codec.Issue(uuid.NewString(), "alice", "ADMIN", TypeAccess)
	require.NoError(t, err)

	other := &Codec{Secret: []byte("different-secret"), AccessExpire: time.Minute, RefreshExpire: time.Minute}
	_, err = other.Decode(token, TypeAccess)
	require.ErrorIs(t, err, ErrMalformedToken)
}
