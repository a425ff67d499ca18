package apierr

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MessageBody is the response body of service and unexpected failures.
type MessageBody struct {
	Msg string `json:"msg"`
}

// DetailBody is the response body of validation failures.
type DetailBody struct {
	Detail []Detail `json:"detail"`
}

// Write classifies err and writes it as a JSON response. Unexpected causes
// are logged against the request logger and replaced by UnexpectedMessage.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := From(err)

	switch apiErr.Kind {
	case KindValidation:
		WriteJSON(w, apiErr.HTTPStatus(), DetailBody{Detail: apiErr.Details})
	case KindService:
		WriteJSON(w, apiErr.HTTPStatus(), MessageBody{Msg: apiErr.Message})
	default:
		zerolog.Ctx(r.Context()).Error().Err(apiErr.Err).Str("path", r.URL.Path).Msg("unexpected error")
		WriteJSON(w, apiErr.HTTPStatus(), MessageBody{Msg: UnexpectedMessage})
	}
}

// WriteJSON writes v as a JSON response with the given status. A value that
// cannot be encoded is answered with a 500 and UnexpectedMessage.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		status = http.StatusInternalServerError
		data, _ = json.Marshal(MessageBody{Msg: UnexpectedMessage})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
