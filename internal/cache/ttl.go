package cache

import "time"

// TTLs per resource kind. Instruments are near-static; historicals roll
// forward slowly; quotes are never cached at all.
const (
	TTLInstrument   = 10 * time.Minute
	TTLHistoricals  = 5 * time.Minute
	TTLFundamentals = 10 * time.Minute
	TTLMarketHours  = 10 * time.Minute
)
