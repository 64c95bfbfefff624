// Package models defines hospitality domain records for StayPilot.
//
// Guests, reservations, and staff are owned by other subsystems; StayPilot
// reads them through the store in the normalized shapes below.
package models

import "time"

// ReservationStatus values used by the trigger evaluator.
const (
	ReservationConfirmed  = "confirmed"
	ReservationCheckedIn  = "checked_in"
	ReservationCheckedOut = "checked_out"
	ReservationCancelled  = "cancelled"
)

// Guest is a hotel guest record.
type Guest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
}

// Reservation is a stay record normalized from the PMS.
type Reservation struct {
	ID            string    `json:"id"`
	GuestID       string    `json:"guest_id"`
	RoomNumber    string    `json:"room_number,omitempty"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
	Status        string    `json:"status"`
}

// TaskStatus is the lifecycle state of a staff task.
type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "open"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is a staff task created by automation or approval execution.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Department    string     `json:"department,omitempty"` // e.g. "housekeeping", "front_desk"
	Priority      string     `json:"priority,omitempty"`   // e.g. "standard", "urgent"
	Status        TaskStatus `json:"status"`
	GuestID       string     `json:"guest_id,omitempty"`
	ReservationID string     `json:"reservation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StaffMember is a staff record, read for approval enrichment.
type StaffMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
