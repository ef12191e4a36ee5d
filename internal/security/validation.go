package security

import (
	"regexp"
	"strings"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

// instIDPattern accepts OKX instrument ids such as BTC-USDT,
// ETH-USDT-SWAP or BTC-USD-250328.
var instIDPattern = regexp.MustCompile(`^[A-Z0-9]{1,15}(-[A-Z0-9]{1,15}){1,3}$`)

var instTypes = map[models.InstrumentType]bool{
	models.InstSpot:    true,
	models.InstSwap:    true,
	models.InstFutures: true,
	models.InstMargin:  true,
}

// ValidateInstID normalises and checks an instrument id.
func ValidateInstID(instID string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(instID))
	if id == "" {
		return "", errors.NewValidationError("inst_id", instID, "required")
	}
	if !instIDPattern.MatchString(id) {
		return "", errors.NewValidationError("inst_id", instID, "invalid instrument id")
	}
	return id, nil
}

// ValidateInstType normalises and checks an instrument type. Empty means
// SPOT.
func ValidateInstType(instType string) (models.InstrumentType, error) {
	t := models.InstrumentType(strings.ToUpper(strings.TrimSpace(instType)))
	if t == "" {
		return models.InstSpot, nil
	}
	if !instTypes[t] {
		return "", errors.NewValidationError("inst_type", instType, "unsupported instrument type")
	}
	return t, nil
}

// SanitizeText drops control characters from free-form text.
func SanitizeText(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
