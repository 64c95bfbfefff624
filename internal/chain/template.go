package chain

import (
	"strings"

	"github.com/StayPilot/StayPilot/internal/models"
)

// dateLayout is the guest-facing date format used in message templates.
const dateLayout = "2006-01-02"

// Interpolate replaces {{placeholder}} tokens in a message template with
// values from the execution context. Unknown placeholders are left intact so
// staff can spot typos in their templates.
func Interpolate(template string, execCtx *models.ExecutionContext) string {
	if execCtx == nil || !strings.Contains(template, "{{") {
		return template
	}

	replacements := make([]string, 0, 8)
	if execCtx.Guest != nil {
		replacements = append(replacements, "{{guest_name}}", execCtx.Guest.Name)
	}
	if execCtx.Reservation != nil {
		replacements = append(replacements,
			"{{room_number}}", execCtx.Reservation.RoomNumber,
			"{{arrival_date}}", execCtx.Reservation.ArrivalDate.Format(dateLayout),
			"{{departure_date}}", execCtx.Reservation.DepartureDate.Format(dateLayout),
		)
	}
	if len(replacements) == 0 {
		return template
	}
	return strings.NewReplacer(replacements...).Replace(template)
}
