// Package errors provides coded, categorized errors for projectform.
//
// Every user-visible failure in the module maps to a registered code:
//
//	V1xx  validation  files rejected while staging
//	T2xx  transport   persisted-image deletion failures
//	C3xx  config      projectform.json problems
//	P4xx  protocol    malformed WebSocket messages
//
// # Usage
//
//	err := errors.New("V102").
//	    WithMessage("File 'cat.png' is too large. Maximum size is 5MB.").
//	    WithField("cat.png")
//
//	if errors.HasCategory(err, errors.CategoryValidation) {
//	    // surface to the user
//	}
//
// The CLI prints errors with Format; sessions send Message to the browser.
package errors
