package reservation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var codePattern = regexp.MustCompile(`^R-[0-9A-Z]{8}$`)

// NewReservationCode returns "R-" plus the upper-cased first group of a
// random UUID, e.g. R-3F2A9B10.
func NewReservationCode() string {
	return "R-" + strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
