package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/alertbridge/alertbridge/internal/models"
)

// FingerprintFields is the ordered field list used to dedup canonical
// alerts. Two alerts with equal groups and monitor_id must always collide,
// no matter what the other fields say.
var FingerprintFields = []string{"groups", "monitor_id"}

// Fingerprint derives the dedup key from exactly the named fields, in
// order. Empty field values contribute nothing; an empty field list falls
// back to the alert name.
func Fingerprint(a *models.Alert, fields []string) string {
	if len(fields) == 0 {
		return a.Name
	}
	h := sha256.New()
	for _, field := range fields {
		if v := fieldValue(a, field); v != "" {
			io.WriteString(h, v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fieldValue(a *models.Alert, field string) string {
	switch field {
	case "groups":
		return strings.Join(a.Groups, ",")
	case "monitor_id":
		return a.MonitorID
	case "name":
		return a.Name
	case "status":
		return a.Status
	case "severity":
		return a.Severity
	case "message":
		return a.Message
	default:
		return ""
	}
}
