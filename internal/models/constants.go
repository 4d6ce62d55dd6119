package models

// Booking statuses. PENDING marks a provisional record written before the
// remote scheduler has accepted the time window; it blocks the slot but is
// never shown to users.
const (
	StatusPending   = "PENDING"
	StatusCreated   = "CREATED"
	StatusCancelled = "CANCELLED"
)

// The seven fixed capacity buckets. A slot holds at most one active booking
// over any given date range.
var Slots = []string{
	"SLOT 1",
	"SLOT 2",
	"SLOT 3",
	"SLOT 4",
	"SLOT 5",
	"SLOT 6",
	"SLOT 7",
}

var slotSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Slots))
	for _, s := range Slots {
		m[s] = struct{}{}
	}
	return m
}()

// IsValidSlot reports whether name is one of the seven fixed slots.
func IsValidSlot(name string) bool {
	_, ok := slotSet[name]
	return ok
}

// Department carries display metadata only; it bears no invariants.
type Department struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
}

// DefaultDepartments is the built-in legend, overridable via config.
var DefaultDepartments = []Department{
	{Name: "AppDev", Color: "#FF6B6B"},
	{Name: "QA", Color: "#4ECDC4"},
	{Name: "DMR", Color: "#45B7D1"},
	{Name: "NOC", Color: "#96CEB4"},
	{Name: "Others", Color: "#D4A5A5"},
}

const (
	// DefaultMinAdvanceDays is the future-date policy: bookings start no
	// earlier than tomorrow.
	DefaultMinAdvanceDays = 1

	// DefaultMaxBookingDays bounds how far ahead a booking may start.
	DefaultMaxBookingDays = 365

	// DefaultCourseCacheTTL is the lifetime of the cached course catalog.
	DefaultCourseCacheTTL = 30 * 60 // 30 minutes in seconds

	// RepairQueueSize is the in-memory repair queue capacity.
	RepairQueueSize = 1000
)
