package service

import (
	"fmt"
	"testing"

	"bus-booking-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSeats(rows int) []models.Seat {
	positions := []struct {
		pos      string
		seatType string
	}{
		{models.PositionA, models.SeatTypeWindow},
		{models.PositionB, models.SeatTypeAisle},
		{models.PositionC, models.SeatTypeAisle},
		{models.PositionD, models.SeatTypeWindow},
	}

	var seats []models.Seat
	for row := 1; row <= rows; row++ {
		for _, p := range positions {
			seats = append(seats, models.Seat{
				ID:          uuid.New(),
				SeatNumber:  fmt.Sprintf("%d%s", row, p.pos),
				SeatType:    p.seatType,
				RowNumber:   row,
				Position:    p.pos,
				IsAvailable: true,
			})
		}
	}
	return seats
}

func TestBuildSeatLayout_FullCoach(t *testing.T) {
	layout := BuildSeatLayout(makeSeats(12))

	assert.Len(t, layout, 12)
	for row := 1; row <= 12; row++ {
		rendered := layout[row]
		require.Len(t, rendered, 5, "row %d", row)

		// A B _ C D with the aisle gap in the middle.
		assert.Equal(t, fmt.Sprintf("%dA", row), rendered[0].SeatNumber)
		assert.Equal(t, fmt.Sprintf("%dB", row), rendered[1].SeatNumber)
		assert.Nil(t, rendered[2])
		assert.Equal(t, fmt.Sprintf("%dC", row), rendered[3].SeatNumber)
		assert.Equal(t, fmt.Sprintf("%dD", row), rendered[4].SeatNumber)
	}
}

func TestBuildSeatLayout_UnsortedInput(t *testing.T) {
	seats := []models.Seat{
		{ID: uuid.New(), SeatNumber: "3D", RowNumber: 3, Position: models.PositionD},
		{ID: uuid.New(), SeatNumber: "3A", RowNumber: 3, Position: models.PositionA},
		{ID: uuid.New(), SeatNumber: "3C", RowNumber: 3, Position: models.PositionC},
		{ID: uuid.New(), SeatNumber: "3B", RowNumber: 3, Position: models.PositionB},
	}

	layout := BuildSeatLayout(seats)
	rendered := layout[3]
	require.Len(t, rendered, 5)
	assert.Equal(t, "3A", rendered[0].SeatNumber)
	assert.Equal(t, "3B", rendered[1].SeatNumber)
	assert.Nil(t, rendered[2])
	assert.Equal(t, "3C", rendered[3].SeatNumber)
	assert.Equal(t, "3D", rendered[4].SeatNumber)
}

func TestBuildSeatLayout_PartialRow(t *testing.T) {
	// A row with only window seats left renders without an aisle gap;
	// the gap exists only between a full left and right pair.
	seats := []models.Seat{
		{ID: uuid.New(), SeatNumber: "5A", RowNumber: 5, Position: models.PositionA},
		{ID: uuid.New(), SeatNumber: "5D", RowNumber: 5, Position: models.PositionD},
	}

	layout := BuildSeatLayout(seats)
	rendered := layout[5]
	require.Len(t, rendered, 2)
	assert.Equal(t, "5A", rendered[0].SeatNumber)
	assert.Equal(t, "5D", rendered[1].SeatNumber)
}

func TestBuildSeatLayout_Empty(t *testing.T) {
	layout := BuildSeatLayout(nil)
	assert.Empty(t, layout)
}
