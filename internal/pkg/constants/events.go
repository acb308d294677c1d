package constants

// Order event types, stored in OrderEvents.event_type and used as the broker message type.
const (
	EventBooked                 = "BOOKED"
	EventCancelled              = "CANCELLED"
	EventLineAmended            = "LINE_AMENDED"
	EventReconciliationRequired = "RECONCILIATION_REQUIRED"
)

// ValidEventTypes lists every event type the booking workflow appends.
var ValidEventTypes = []string{EventBooked, EventCancelled, EventLineAmended, EventReconciliationRequired}

// IsValidEventType returns true if t is one of the known event types.
func IsValidEventType(t string) bool {
	for _, v := range ValidEventTypes {
		if v == t {
			return true
		}
	}
	return false
}
