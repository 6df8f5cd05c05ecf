package normalize

import (
	"testing"
	"time"

	"github.com/BearBump/ShipAlert/internal/broker/messages"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_FullPayload(t *testing.T) {
	evTime := time.Date(2024, 2, 11, 9, 30, 0, 0, time.UTC)
	s, err := Snapshot(messages.RawTrackingPayload{
		TrackingNumber:            " TRK-42 ",
		Carrier:                   "UPS",
		Status:                    "In Transit",
		EstimatedDelivery:         "2024-02-15",
		OriginalEstimatedDelivery: "2024-02-10T00:00:00Z",
		Events: []messages.RawTrackingEvent{
			{Timestamp: evTime, Description: "Departed facility"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "TRK-42", s.TrackingNumber)
	require.Equal(t, "ups", s.CarrierCode)
	require.Equal(t, models.TrackingStatusInTransit, s.Status)
	require.NotNil(t, s.EstimatedDeliveryDate)
	require.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *s.EstimatedDeliveryDate)
	require.NotNil(t, s.OriginalEstimatedDeliveryDate)
	require.Len(t, s.Events, 1)
	require.Equal(t, "Departed facility", s.Events[0].Description)
}

func TestSnapshot_MissingDatesAreNil(t *testing.T) {
	s, err := Snapshot(messages.RawTrackingPayload{
		TrackingNumber: "TRK-1",
		Carrier:        "cdek",
		Status:         "delayed",
	})
	require.NoError(t, err)
	require.Nil(t, s.EstimatedDeliveryDate)
	require.Nil(t, s.OriginalEstimatedDeliveryDate)
	require.Equal(t, models.TrackingStatusDelayed, s.Status)
}

func TestSnapshot_Validation(t *testing.T) {
	_, err := Snapshot(messages.RawTrackingPayload{Carrier: "ups"})
	require.Error(t, err)

	_, err = Snapshot(messages.RawTrackingPayload{
		TrackingNumber:    "TRK-1",
		EstimatedDelivery: "not-a-date",
	})
	require.Error(t, err)
}

func TestStatus_Aliases(t *testing.T) {
	require.Equal(t, models.TrackingStatusInTransit, Status("OUT-FOR-DELIVERY"))
	require.Equal(t, models.TrackingStatusException, Status("failure"))
	require.Equal(t, models.TrackingStatusDelayed, Status("LATE"))
	require.Equal(t, models.TrackingStatusPending, Status("pre_transit"))
	require.Equal(t, models.TrackingStatusUnknown, Status("weird carrier code"))
	require.Equal(t, models.TrackingStatusUnknown, Status(""))
}
