package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDynamic(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    any
		wantErr bool
	}{
		{
			name: "struct becomes object",
			input: struct {
				Name string `json:"name"`
				Age  int    `json:"age"`
			}{Name: "test", Age: 30},
			want: map[string]any{"name": "test", "age": float64(30)},
		},
		{name: "slice becomes array", input: []int{1, 2}, want: []any{float64(1), float64(2)}},
		{name: "scalar", input: "plain", want: "plain"},
		{name: "unencodable", input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDynamic(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type userCreated struct {
	UserID string `json:"userId"`
	Admin  bool   `json:"admin,omitempty"`
}

func TestConvert(t *testing.T) {
	t.Run("same type passes through", func(t *testing.T) {
		in := userCreated{UserID: "1"}
		got, err := Convert[userCreated](in)
		assert.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("dynamic map is decoded", func(t *testing.T) {
		got, err := Convert[userCreated](map[string]any{"userId": "1", "admin": true})
		assert.NoError(t, err)
		assert.Equal(t, userCreated{UserID: "1", Admin: true}, got)
	})

	t.Run("nil yields zero value", func(t *testing.T) {
		got, err := Convert[userCreated](nil)
		assert.NoError(t, err)
		assert.Equal(t, userCreated{}, got)
	})

	t.Run("incompatible payload", func(t *testing.T) {
		_, err := Convert[userCreated]("not an object")
		assert.Error(t, err)
	})
}
