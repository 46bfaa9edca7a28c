package rpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphps/internal/graph"
)

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest(3, 9, GraphSample, EncodeUint64(37), EncodeInt32(4))
	buf, err := req.MarshalBinary()
	require.NoError(t, err)

	var got Request
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.True(t, got.HasTable)
	assert.Equal(t, uint32(3), got.TableID)
	assert.Equal(t, uint32(9), got.ClientID)
	assert.Equal(t, GraphSample, got.Command)
	require.Len(t, got.Params, 2)

	id, err := DecodeUint64(got.Params[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(37), id)
	k, err := DecodeInt32(got.Params[1])
	require.NoError(t, err)
	assert.Equal(t, int32(4), k)
}

func TestRequestWithoutTable(t *testing.T) {
	buf, err := (&Request{Command: StopServer}).MarshalBinary()
	require.NoError(t, err)
	var got Request
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.False(t, got.HasTable)
	assert.Empty(t, got.Params)
}

func TestRequestMalformed(t *testing.T) {
	good, err := NewRequest(0, 0, LoadOneTable, []byte("path"), []byte("")).MarshalBinary()
	require.NoError(t, err)

	bad := append([]byte{}, good...)
	bad[0] = 7

	huge := append([]byte{}, good[:13]...)
	huge = append(huge, 0xff, 0xff, 0xff, 0x7f)

	tests := map[string][]byte{
		"empty":          nil,
		"short header":   good[:10],
		"truncated":      good[:len(good)-3],
		"trailing bytes": append(append([]byte{}, good...), 1),
		"table flag":     bad,
		"param count":    huge,
	}
	for name, buf := range tests {
		t.Run(name, func(t *testing.T) {
			var r Request
			err := r.UnmarshalBinary(buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, graph.ErrDecode)
			assert.Equal(t, CodeProtocol, CodeOf(err))
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{Data: EncodeStat(4, 12), Attachment: []byte{1, 2, 3}}
	buf, err := resp.MarshalBinary()
	require.NoError(t, err)

	var got Response
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, CodeOK, got.Code)
	assert.Empty(t, got.Message)
	assert.Equal(t, []byte{1, 2, 3}, got.Attachment)
	assert.NoError(t, got.Err())

	nodes, edges, err := DecodeStat(got.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(4), nodes)
	assert.Equal(t, int64(12), edges)

	var trunc Response
	assert.ErrorIs(t, trunc.UnmarshalBinary(buf[:len(buf)-1]), graph.ErrDecode)
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(fmt.Errorf("table 4: %w", graph.ErrNotFound))
	assert.Equal(t, CodeNotFound, resp.Code)

	buf, err := resp.MarshalBinary()
	require.NoError(t, err)
	var got Response
	require.NoError(t, got.UnmarshalBinary(buf))

	err = got.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	assert.NotErrorIs(t, err, ErrInternal)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, remote.Message, "table 4")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, CodeOK},
		{errors.New("boom"), CodeInternal},
		{Protocolf("missing"), CodeProtocol},
		{fmt.Errorf("x: %w", graph.ErrLoad), CodeLoad},
		{ErrUnknownCommand, CodeUnknownCommand},
		{ErrUnavailable, CodeUnavailable},
		{ErrUnsupported, CodeUnsupported},
		{&RemoteError{Code: CodeLoad}, CodeLoad},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), "%v", tt.err)
	}

	for _, c := range []Code{CodeInternal, CodeProtocol, CodeUnknownCommand, CodeUnavailable, CodeUnsupported} {
		remote := &RemoteError{Code: c}
		assert.Equal(t, c, CodeOf(fmt.Errorf("wrapped: %w", remote)))
	}
}

func TestParams(t *testing.T) {
	_, err := DecodeInt32([]byte{1, 2})
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = DecodeUint64([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = DecodeUint64s(make([]byte, 9))
	assert.ErrorIs(t, err, ErrProtocol)
	_, _, err = DecodeStat(make([]byte, 8))
	assert.ErrorIs(t, err, ErrProtocol)

	ids, err := DecodeUint64s(EncodeUint64s([]uint64{37, 59, 1 << 60}))
	require.NoError(t, err)
	assert.Equal(t, []uint64{37, 59, 1 << 60}, ids)

	v, err := DecodeInt32(EncodeInt32(-5))
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v)

	req := NewRequest(0, 0, PullGraphList, EncodeInt32(0))
	err = req.ExpectParams(2)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Contains(t, err.Error(), "PULL_GRAPH_LIST")
	assert.NoError(t, req.ExpectParams(1))
}

func TestSlots(t *testing.T) {
	slots := [][]byte{{1, 2}, {}, {3}}
	got, err := DecodeSlots(EncodeSlots(slots))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []byte{1, 2}, got[0])
	assert.Empty(t, got[1])
	assert.Equal(t, []byte{3}, got[2])

	got, err = DecodeSlots(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DecodeSlots([]byte{5, 0, 0, 0, 1})
	assert.ErrorIs(t, err, graph.ErrDecode)
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, "GRAPH_SAMPLE", GraphSample.String())
	assert.Equal(t, "COMMAND(42)", Command(42).String())
	cmds := Commands()
	assert.Len(t, cmds, 10)
	for i, c := range cmds {
		assert.Equal(t, Command(i), c)
	}
}
