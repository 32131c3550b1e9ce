package httpserver

import (
	"regexp"
	"strconv"
	"strings"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var jobIDPattern = regexp.MustCompile(`^JDHASH-[0-9A-F]{24}$`)

func invalid(field, code, message string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

// ValidateJobID checks the shape of a canonical analysis id.
func ValidateJobID(jobID string) ValidationResult {
	if jobID == "" {
		return invalid("job_id", "REQUIRED", "Job ID is required")
	}
	if len(jobID) > 100 {
		return invalid("job_id", "TOO_LONG", "Job ID is too long (max 100 characters)")
	}
	if !jobIDPattern.MatchString(jobID) {
		return invalid("job_id", "INVALID_FORMAT", "Job ID must look like JDHASH-<24 hex>")
	}
	return ValidationResult{Valid: true}
}

// ValidateLimit checks a history page size. Empty means the default.
func ValidateLimit(limit string) ValidationResult {
	if limit == "" {
		return ValidationResult{Valid: true}
	}
	n, err := strconv.Atoi(limit)
	if err != nil || n < 1 || n > 100 {
		return invalid("limit", "INVALID_FORMAT", "Limit must be between 1 and 100")
	}
	return ValidationResult{Valid: true}
}

// parseOptionalInt parses a form value; empty returns nil.
func parseOptionalInt(field, v string) (*int, *ValidationError) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &ValidationError{Field: field, Code: "INVALID_FORMAT", Message: field + " must be an integer"}
	}
	return &n, nil
}

// splitList accepts repeated form values and comma-separated ones.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
