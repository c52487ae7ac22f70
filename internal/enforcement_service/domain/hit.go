package domain

import (
	"fmt"

	dldomain "github.com/autobahn/moderation/internal/denylist_service/domain"
)

// DenylistHit names the denylist entry that matched an event.
type DenylistHit struct {
	Category dldomain.Category `json:"category"`
	Index    int64             `json:"index"`
}

// Reason is the ban reason recorded for a hit, e.g. "Spambot[kv2 0x1 0x0012]".
// The index is decimal, zero padded to four places.
func (h DenylistHit) Reason() string {
	return fmt.Sprintf("Spambot[kv2 %s 0x%04d]", h.Category.Code(), h.Index)
}
