package delaycheck

import (
	"fmt"
	"hash/fnv"
)

// Signature — стабильная идентичность конкретной задержки.
// Одни и те же входы всегда дают одну и ту же сигнатуру (FNV-1a 64),
// она же idempotency-ключ в леджере и очереди.
func Signature(orderID, trackingNumber, reason string, delayDays int) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(orderID))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(trackingNumber))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(reason))
	_, _ = fmt.Fprintf(h, "|%d", delayDays)
	return fmt.Sprintf("%016x", h.Sum64())
}
