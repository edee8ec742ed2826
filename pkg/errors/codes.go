package errors

import "strings"

// ErrorCode identifies a failure category.  Codes are "<MODULE>_<NNN>".
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_005"
	ErrCodeTimeout         ErrorCode = "COMMON_009"
	ErrCodeValidation      ErrorCode = "COMMON_010"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeDatabaseError   ErrorCode = "COMMON_012"
	ErrCodeCacheError      ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeConfigInvalid   ErrorCode = "COMMON_017"
)

// Glossary
const (
	ErrCodeGlossaryCorrupt     ErrorCode = "GLS_001"
	ErrCodeDuplicateAlias      ErrorCode = "GLS_002"
	ErrCodeUnknownCategory     ErrorCode = "GLS_003"
	ErrCodeMatcherBuild        ErrorCode = "GLS_004"
	ErrCodeGlossaryUnavailable ErrorCode = "GLS_005"
	ErrCodeGlossaryNotLoaded   ErrorCode = "GLS_006"
)

// Acronym memory
const (
	ErrCodeAcronymStoreUnavailable ErrorCode = "ACR_001"
	ErrCodeLockNotAcquired         ErrorCode = "ACR_002"
	ErrCodeLockNotHeld             ErrorCode = "ACR_003"
	ErrCodeInvalidAcronym          ErrorCode = "ACR_004"
)

// External recognizer
const (
	ErrCodeNERUnavailable ErrorCode = "NER_001"
	ErrCodeNERBadResponse ErrorCode = "NER_002"
)

// Detection
const (
	ErrCodeInvalidDocument ErrorCode = "DET_001"
)

// Messaging and object storage
const (
	ErrCodeMessagingUnavailable ErrorCode = "MSG_001"
	ErrCodeObjectStoreError     ErrorCode = "OBJ_001"
)

// ErrorCodeMessage maps codes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeBadRequest:      "bad request",
	ErrCodeNotFound:        "resource not found",
	ErrCodeTimeout:         "operation timed out",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeDatabaseError:   "database error",
	ErrCodeCacheError:      "cache error",
	ErrCodeExternalService: "external service error",
	ErrCodeConfigInvalid:   "invalid configuration",

	ErrCodeGlossaryCorrupt:     "glossary source is corrupt",
	ErrCodeDuplicateAlias:      "alias is not unique",
	ErrCodeUnknownCategory:     "unknown term category",
	ErrCodeMatcherBuild:        "failed to build glossary matcher",
	ErrCodeGlossaryUnavailable: "glossary source unavailable",
	ErrCodeGlossaryNotLoaded:   "glossary not loaded",

	ErrCodeAcronymStoreUnavailable: "acronym store unavailable",
	ErrCodeLockNotAcquired:         "document lock not acquired",
	ErrCodeLockNotHeld:             "document lock not held",
	ErrCodeInvalidAcronym:          "invalid acronym",

	ErrCodeNERUnavailable: "entity recognizer unavailable",
	ErrCodeNERBadResponse: "entity recognizer returned a malformed response",

	ErrCodeInvalidDocument: "invalid document",

	ErrCodeMessagingUnavailable: "message broker unavailable",
	ErrCodeObjectStoreError:     "object storage error",
}

// DefaultMessageForCode returns the default message for code.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of code.
func ModuleForCode(code ErrorCode) string {
	parts := strings.SplitN(string(code), "_", 2)
	if len(parts) == 2 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// ExitCodeForCode maps a code to a process exit status for the CLI:
// 2 for configuration and input problems, 1 for everything else.
func ExitCodeForCode(code ErrorCode) int {
	switch code {
	case CodeOK:
		return 0
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeConfigInvalid,
		ErrCodeGlossaryCorrupt, ErrCodeDuplicateAlias, ErrCodeUnknownCategory,
		ErrCodeInvalidDocument, ErrCodeInvalidAcronym:
		return 2
	}
	return 1
}
