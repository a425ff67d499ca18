package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/apierr"
)

type loginBody struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8"`
	Percent  int    `json:"train_percentage" validate:"gte=10,lte=100"`
}

func TestStruct(t *testing.T) {
	v := New()

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, v.Struct(&loginBody{Username: "alice", Password: "password1", Percent: 80}))
	})

	t.Run("field details use json names", func(t *testing.T) {
		err := v.Struct(&loginBody{Username: "al", Password: "short", Percent: 5})
		require.Error(t, err)

		apiErr := apierr.From(err)
		require.Equal(t, apierr.KindValidation, apiErr.Kind)
		require.Len(t, apiErr.Details, 3)

		byField := map[string]apierr.Detail{}
		for _, d := range apiErr.Details {
			require.Equal(t, BodyLoc, d.Loc[0])
			byField[d.Loc[len(d.Loc)-1]] = d
		}
		require.Equal(t, "min", byField["username"].Type)
		require.Equal(t, "min", byField["password"].Type)
		require.Equal(t, "gte", byField["train_percentage"].Type)
		require.Contains(t, byField["username"].Msg, "username")
	})
}

func TestDecode(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		var body loginBody
		err := Decode([]byte(`{"username":`), &body)
		apiErr := apierr.From(err)
		require.Equal(t, apierr.KindValidation, apiErr.Kind)
		require.Equal(t, "json_invalid", apiErr.Details[0].Type)
	})

	t.Run("wrong type", func(t *testing.T) {
		var body loginBody
		err := Decode([]byte(`{"train_percentage":"eighty"}`), &body)
		apiErr := apierr.From(err)
		require.Equal(t, apierr.KindValidation, apiErr.Kind)
		require.Equal(t, []string{BodyLoc, "train_percentage"}, apiErr.Details[0].Loc)
		require.Equal(t, "type_error", apiErr.Details[0].Type)
	})

	t.Run("decode and validate", func(t *testing.T) {
		var body loginBody
		err := New().DecodeAndValidate([]byte(`{"username":"alice","password":"password1","train_percentage":101}`), &body)
		apiErr := apierr.From(err)
		require.Equal(t, apierr.KindValidation, apiErr.Kind)
		require.Equal(t, "lte", apiErr.Details[0].Type)
	})
}
