package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func profile() *DoctorProfile {
	return &DoctorProfile{
		AvgConsultationTime: 30,
		Availability: []Availability{
			{Day: "Monday", StartTime: "09:00", EndTime: "11:00", IsAvailable: true},
			{Day: "Monday", StartTime: "14:00", EndTime: "15:00", IsAvailable: true},
			{Day: "Tuesday", StartTime: "09:00", EndTime: "12:00", IsAvailable: false},
		},
	}
}

func TestSlotFits(t *testing.T) {
	p := profile()

	assert.True(t, p.SlotFits(monday, "09:00", 30))
	assert.True(t, p.SlotFits(monday, "10:30", 30))
	assert.False(t, p.SlotFits(monday, "10:45", 30), "runs past the window")
	assert.False(t, p.SlotFits(monday, "12:00", 30))
	assert.False(t, p.SlotFits(monday, "bad", 30))
	assert.False(t, p.SlotFits(monday.AddDate(0, 0, 1), "09:00", 30), "window marked unavailable")
}

func TestFreeSlots(t *testing.T) {
	p := profile()
	slots := p.FreeSlots(monday, 30, map[string]bool{"09:30": true})
	assert.Equal(t, []string{"09:00", "10:00", "10:30", "14:00", "14:30"}, slots)
	assert.Empty(t, p.FreeSlots(monday.AddDate(0, 0, 2), 30, nil))
}

func TestConsultationMinutes(t *testing.T) {
	assert.Equal(t, 30, profile().ConsultationMinutes(15))
	assert.Equal(t, 15, (&DoctorProfile{}).ConsultationMinutes(15))

	var p *DoctorProfile
	assert.Equal(t, 15, p.ConsultationMinutes(15))
}

func TestValidateAvailability(t *testing.T) {
	assert.NoError(t, ValidateAvailability(profile().Availability))
	assert.Error(t, ValidateAvailability([]Availability{{Day: "Funday", StartTime: "09:00", EndTime: "10:00"}}))
	assert.Error(t, ValidateAvailability([]Availability{{Day: "Monday", StartTime: "10:00", EndTime: "09:00"}}))
	assert.Error(t, ValidateAvailability([]Availability{{Day: "Monday", StartTime: "9am", EndTime: "10:00"}}))
}

func TestDoctorProfileUpdateValidate(t *testing.T) {
	zero := 0
	assert.Error(t, DoctorProfileUpdate{AvgConsultationTime: &zero}.Validate())

	bad := GeoPoint{Type: "Point", Coordinates: []float64{200, 10}}
	assert.Error(t, DoctorProfileUpdate{Location: &bad}.Validate())

	good := NewPoint(-1.28, 36.82)
	assert.NoError(t, DoctorProfileUpdate{Location: &good}.Validate())
	assert.True(t, DoctorProfileUpdate{}.Empty())
}
