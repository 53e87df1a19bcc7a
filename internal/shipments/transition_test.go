package shipments

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
)

func TestCheckAllowed(t *testing.T) {
	barcode := "PKG-1"
	cases := []struct {
		from    enums.ShipmentStatus
		to      enums.ShipmentStatus
		barcode *string
		ok      bool
	}{
		{enums.ShipmentStatusCreated, enums.ShipmentStatusAssigned, nil, true},
		{enums.ShipmentStatusCreated, enums.ShipmentStatusDispatched, nil, false},
		{enums.ShipmentStatusAssigned, enums.ShipmentStatusAssigned, nil, true},
		{enums.ShipmentStatusAssigned, enums.ShipmentStatusDelivered, nil, false},
		{enums.ShipmentStatusDispatched, enums.ShipmentStatusDelivered, nil, true},
		{enums.ShipmentStatusDispatched, enums.ShipmentStatusDelivered, &barcode, false},
		{enums.ShipmentStatusOutForDelivery, enums.ShipmentStatusDelivered, &barcode, true},
		{enums.ShipmentStatusOutForDelivery, enums.ShipmentStatusAssigned, nil, false},
		{enums.ShipmentStatusDelivered, enums.ShipmentStatusFailed, nil, false},
		{enums.ShipmentStatusFailed, enums.ShipmentStatusAssigned, nil, false},
	}
	for _, tc := range cases {
		err := CheckAllowed(&models.Shipment{Status: tc.from, Barcode: tc.barcode}, tc.to)
		if tc.ok {
			require.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "%s -> %s", tc.from, tc.to)
	}
}
