package summarize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"medsum/internal/domain/entity"
)

func TestModelLoadError(t *testing.T) {
	cause := errors.New("repository not found")

	tests := []struct {
		name string
		err  *ModelLoadError
		want string
	}{
		{
			name: "with device",
			err:  &ModelLoadError{ModelID: "org/model", Device: entity.DeviceCUDA, Err: cause},
			want: `load model "org/model" on cuda:0: repository not found`,
		},
		{
			name: "without device",
			err:  &ModelLoadError{ModelID: "", Err: ErrEmptyModelID},
			want: `load model "": model identifier cannot be empty`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, tt.err.Err)
		})
	}
}

func TestInferenceError(t *testing.T) {
	tests := []struct {
		name string
		err  *InferenceError
		want string
	}{
		{
			name: "chunk",
			err:  &InferenceError{Chunk: 3, Pass: PassFirst, Err: errors.New("out of memory")},
			want: "inference failed on chunk 3 (first pass): out of memory",
		},
		{
			name: "second pass",
			err:  &InferenceError{Chunk: -1, Pass: PassSecond, Err: context.DeadlineExceeded},
			want: "inference failed (second pass): context deadline exceeded",
		},
		{
			name: "chunking",
			err:  &InferenceError{Chunk: -1, Pass: PassChunking, Err: errors.New("bad vocab")},
			want: "inference failed (chunking pass): bad vocab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())

			var wrapped error = tt.err
			var ie *InferenceError
			assert.True(t, errors.As(wrapped, &ie))
			assert.Equal(t, tt.err.Pass, ie.Pass)
			assert.ErrorIs(t, wrapped, tt.err.Err)
		})
	}
}
