package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Validation Errors (V101-V199)
	// ============================================

	"V101": {
		Category: CategoryValidation,
		Message:  "Too many files selected",
		Detail:   "The batch holds more files than the remaining upload slots. Nothing from the batch was added.",
	},
	"V102": {
		Category: CategoryValidation,
		Message:  "File is too large",
		Detail:   "The file exceeds the per-file size limit.",
	},
	"V103": {
		Category: CategoryValidation,
		Message:  "File is not an image",
		Detail:   "Only files with an image/* MIME type can be staged.",
	},
	"V104": {
		Category: CategoryValidation,
		Message:  "File is already added",
		Detail:   "The same file object is already in the staged list.",
	},
	"V105": {
		Category: CategoryValidation,
		Message:  "Could not read file for preview",
		Detail:   "Reading the file contents to build a thumbnail failed. The file was removed from the staged list.",
	},

	// ============================================
	// Transport Errors (T201-T299)
	// ============================================

	"T201": {
		Category: CategoryTransport,
		Message:  "An error occurred while deleting the image.",
		Detail:   "The delete request failed at the transport level or returned an unreadable response.",
	},
	"T202": {
		Category: CategoryTransport,
		Message:  "Failed to delete the image. Please try again.",
		Detail:   "The server answered the delete request with success=false.",
	},

	// ============================================
	// Config Errors (C301-C399)
	// ============================================

	"C301": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
	},
	"C302": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
	},
	"C303": {
		Category: CategoryConfig,
		Message:  "Configuration value out of range",
	},
	"C304": {
		Category: CategoryConfig,
		Message:  "Configuration file already exists",
	},

	// ============================================
	// Protocol Errors (P401-P499)
	// ============================================

	"P401": {
		Category: CategoryProtocol,
		Message:  "Malformed client message",
	},
	"P402": {
		Category: CategoryProtocol,
		Message:  "Unknown target",
		Detail:   "The message refers to an element, file or image the session does not know.",
	},
	"P403": {
		Category: CategoryProtocol,
		Message:  "Too many pending events",
		Detail:   "The session's event queue is full. The event was dropped.",
	},
	"P404": {
		Category: CategoryProtocol,
		Message:  "Handshake required",
		Detail:   "The first message on a connection must be a hello.",
	},
}

// GetAllCodes returns all registered error codes, sorted.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
