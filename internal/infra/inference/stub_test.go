package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medsum/internal/domain/entity"
	"medsum/internal/usecase/summarize"
)

func TestStub_TokenizeRoundTrip(t *testing.T) {
	s := NewStub()

	ids, err := s.Tokenize("  chest pain  chest\tx-ray ")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 2}, ids)

	text, err := s.Detokenize(ids[1:])
	require.NoError(t, err)
	assert.Equal(t, "pain chest x-ray", text)

	_, err = s.Detokenize([]int{99})
	assert.Error(t, err)
}

func TestStub_Summarize(t *testing.T) {
	s := NewStub()
	opts := summarize.Options{MinLength: 1, MaxLength: 5, Deterministic: true}

	got, err := s.Summarize(context.Background(), "héllo", opts)
	require.NoError(t, err)
	assert.Equal(t, "SUM:5", got)

	calls := s.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, StubCall{Text: "héllo", Opts: opts}, calls[0])
}

func TestStub_Overrides(t *testing.T) {
	boom := errors.New("boom")
	s := &Stub{
		TokenizeErr: boom,
		SummarizeFunc: func(context.Context, string, summarize.Options) (string, error) {
			return "", boom
		},
	}

	_, err := s.Tokenize("x")
	assert.ErrorIs(t, err, boom)

	_, err = s.Summarize(context.Background(), "x", summarize.Options{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.Calls(), 1)
}

func TestStubLoader(t *testing.T) {
	loader := NewStubLoader(nil)
	req := summarize.LoadRequest{ModelID: "m", Device: entity.DeviceCPU}

	m, err := loader.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, loader.Model(), m)
	assert.Equal(t, 1, loader.Loads())
	assert.Equal(t, []summarize.LoadRequest{req}, loader.Requests())

	loader.Err = errors.New("offline")
	_, err = loader.Load(context.Background(), req)
	assert.EqualError(t, err, "offline")
	assert.Equal(t, 2, loader.Loads())
}
