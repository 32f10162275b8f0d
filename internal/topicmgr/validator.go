package topicmgr

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// maxNameLength matches the practical limit we want for channel names that
// end up in logs and metrics.
const maxNameLength = 100

// namePattern accepts lowercase identifiers with the separators commonly used
// in channel names: "promo_alerts", "orders.eu-west", "tenant:42".
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.:\-]*$`)

// normalize trims and case-folds a topic name. It never fails; validation is
// a separate step so hot paths such as Touch can normalize without erroring.
func normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	// A cases.Caser is stateful and not safe for concurrent use.
	return cases.Fold().String(trimmed)
}

// Normalize returns the canonical form of name or an error when the name
// cannot be used as a topic.
func Normalize(name string) (string, error) {
	n := normalize(name)
	if err := ValidateName(n); err != nil {
		return "", &TopicError{
			Type:    ErrorInvalidName,
			Topic:   name,
			Message: "invalid topic name",
			Cause:   err,
		}
	}
	return n, nil
}

// ValidateName checks an already-normalized topic name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > maxNameLength {
		return fmt.Errorf("name too long (max %d characters)", maxNameLength)
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must be lowercase alphanumeric with '_', '.', ':' or '-' separators")
	}

	return nil
}
