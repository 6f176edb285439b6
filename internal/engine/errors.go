package engine

// ValidationError reports a request field that failed validation before any
// ledger work started. Handlers map it to a 400 with the field name intact.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
