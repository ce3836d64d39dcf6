package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PayloadDecoder turns a family payload into a Resource.
type PayloadDecoder func(payload json.RawMessage, resourceType string) (Resource, error)

type SharePayload struct {
	ShareID     string `json:"share_id" validate:"required,notblank"`
	DisplayName string `json:"display_name"`
	Size        *int64 `json:"size" validate:"required,gte=0"`
	UserID      string `json:"user_id" validate:"required,notblank"`
	TenantID    string `json:"tenant_id" validate:"required,notblank"`
	Status      string `json:"status"`
}

type VolumePayload struct {
	VolumeID    string `json:"volume_id" validate:"required,notblank"`
	DisplayName string `json:"display_name"`
	Size        *int64 `json:"size" validate:"required,gte=0"`
	UserID      string `json:"user_id" validate:"required,notblank"`
	TenantID    string `json:"tenant_id" validate:"required,notblank"`
	Status      string `json:"status"`
}

var decoders = map[string]PayloadDecoder{
	"share":  DecodeShare,
	"volume": DecodeVolume,
}

// DecoderFor returns the payload decoder registered for a resource type.
func DecoderFor(resourceType string) (PayloadDecoder, bool) {
	d, ok := decoders[resourceType]
	return d, ok
}

func DecodeShare(payload json.RawMessage, resourceType string) (Resource, error) {
	var p SharePayload
	if err := decodeInto(payload, &p); err != nil {
		return Resource{}, err
	}
	return Resource{
		ID:        strings.TrimSpace(p.ShareID),
		Name:      p.DisplayName,
		Type:      resourceType,
		Status:    strings.TrimSpace(p.Status),
		Volume:    *p.Size,
		UserID:    p.UserID,
		ProjectID: p.TenantID,
	}, nil
}

func DecodeVolume(payload json.RawMessage, resourceType string) (Resource, error) {
	var p VolumePayload
	if err := decodeInto(payload, &p); err != nil {
		return Resource{}, err
	}
	return Resource{
		ID:        strings.TrimSpace(p.VolumeID),
		Name:      p.DisplayName,
		Type:      resourceType,
		Status:    strings.TrimSpace(p.Status),
		Volume:    *p.Size,
		UserID:    p.UserID,
		ProjectID: p.TenantID,
	}, nil
}

func decodeInto(payload json.RawMessage, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedEvent, describe(err))
	}
	return nil
}
