package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var ErrMalformedEvent = errors.New("malformed_event")

// Envelope is the transport-neutral notification wrapper.
type Envelope struct {
	MessageID string          `json:"message_id,omitempty"`
	EventType string          `json:"event_type" validate:"required,notblank"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// Resource is the normalized view of a lifecycle payload.
type Resource struct {
	ID        string
	Name      string
	Type      string
	Status    string
	Volume    int64
	UserID    string
	ProjectID string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// DecodeEnvelope parses raw into an Envelope. Any failure wraps ErrMalformedEvent.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	env.EventType = strings.TrimSpace(env.EventType)
	if err := validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", ErrMalformedEvent, describe(err))
	}
	return env, nil
}

// Time returns the envelope timestamp, or fallback when it is absent or unparseable.
func (e Envelope) Time(fallback time.Time) (time.Time, bool) {
	return ParseTimestamp(e.Timestamp, fallback)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the layouts the platform emits. Values without zone are UTC.
func ParseTimestamp(value string, fallback time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return fallback, false
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
