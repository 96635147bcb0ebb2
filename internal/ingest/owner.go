package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"weatherdash/internal/dataapi"
	"weatherdash/internal/types"
)

// OwnerResolver reads the owner from the parent record. The owner is never
// taken from the incoming payload.
type OwnerResolver struct {
	api Executor
}

func NewOwnerResolver(api Executor) *OwnerResolver {
	return &OwnerResolver{api: api}
}

func (r *OwnerResolver) StationOwner(ctx context.Context, stationKey string) (string, error) {
	var st types.WeatherStation
	err := r.lookup(ctx, dataapi.GetWeatherStation, map[string]any{"stationKey": stationKey}, &st, "station "+stationKey)
	if err != nil {
		return "", err
	}
	return ownerOf(st.Owner, "station "+stationKey)
}

func (r *OwnerResolver) DeviceOwner(ctx context.Context, deviceID string) (string, error) {
	var d types.Device
	err := r.lookup(ctx, dataapi.GetDevices, map[string]any{"device_id": deviceID}, &d, "device "+deviceID)
	if err != nil {
		return "", err
	}
	return ownerOf(d.Owner, "device "+deviceID)
}

func (r *OwnerResolver) lookup(ctx context.Context, op dataapi.Operation, vars map[string]any, out any, what string) error {
	const stage = "owner lookup"
	resp, err := r.api.Execute(ctx, op, vars)
	if err != nil {
		var gqlErrs dataapi.ResponseErrors
		if errors.As(err, &gqlErrs) {
			return newError(KindLookupFailed, stage, fmt.Errorf("%s: %w", what, err))
		}
		return newError(KindTransportError, stage, fmt.Errorf("%s: %w", what, err))
	}
	found, err := resp.Field(op.Field, out)
	if err != nil {
		return newError(KindLookupFailed, stage, err)
	}
	if !found {
		return newError(KindOwnerNotFound, stage, fmt.Errorf("%s does not exist", what))
	}
	return nil
}

func ownerOf(owner, what string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", newError(KindOwnerUnassigned, "owner lookup", fmt.Errorf("%s has no owner", what))
	}
	return owner, nil
}
