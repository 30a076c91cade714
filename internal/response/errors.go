package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrTokenRevoked       ErrCode = "TOKEN_REVOKED"
	ErrTokenWrongType     ErrCode = "TOKEN_WRONG_TYPE"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"
	ErrProctorScope      ErrCode = "PROCTOR_SCOPE_REQUIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound            ErrCode = "NOT_FOUND"
	ErrConflict            ErrCode = "CONFLICT"
	ErrDuplicateEnrollment ErrCode = "DUPLICATE_ENROLLMENT"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotActive   ErrCode = "EXAM_NOT_ACTIVE"
	ErrExamNotDraft    ErrCode = "EXAM_NOT_DRAFT"
	ErrNoQuestions     ErrCode = "NO_QUESTIONS"
	ErrMarksMismatch   ErrCode = "MARKS_MISMATCH"
	ErrExamStartPassed ErrCode = "EXAM_START_PASSED"
	ErrProctorOverlap  ErrCode = "PROCTOR_SCHEDULE_OVERLAP"

	// ─── Session engine ────────────────────────────────────────────────
	ErrSessionConflict  ErrCode = "SESSION_CONFLICT"
	ErrSessionSubmitted ErrCode = "SESSION_ALREADY_SUBMITTED"
	ErrSessionSuspended ErrCode = "SESSION_SUSPENDED"
	ErrSuspensionSticky ErrCode = "SUSPENSION_STICKY"
	ErrEnrollmentDone   ErrCode = "ENROLLMENT_COMPLETED"
	ErrQuestionNotInExam ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrNotShortAnswer    ErrCode = "NOT_SHORT_ANSWER"
	ErrMarksOutOfRange   ErrCode = "MARKS_OUT_OF_RANGE"
	ErrNotSuspended      ErrCode = "SESSION_NOT_SUSPENDED"
	ErrExamWindowClosed  ErrCode = "EXAM_WINDOW_CLOSED"

	// ─── Concurrency / infrastructure ──────────────────────────────────
	ErrConcurrentModification ErrCode = "CONCURRENT_MODIFICATION"
	ErrServiceUnavailable     ErrCode = "SERVICE_UNAVAILABLE"
	ErrInferenceUnavailable   ErrCode = "INFERENCE_UNAVAILABLE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrTokenRevoked:
		return "The authentication token has been revoked."
	case ErrTokenWrongType:
		return "The token type is not valid for this operation."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrProctorScope:
		return "You are not assigned to proctor this exam."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrDuplicateEnrollment:
		return "The student is already enrolled in this exam."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotActive:
		return "This exam is not currently available."
	case ErrExamNotDraft:
		return "This exam is not in DRAFT status."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrMarksMismatch:
		return "Question marks do not add up to the exam total."
	case ErrExamStartPassed:
		return "The exam start time has already passed."
	case ErrProctorOverlap:
		return "The proctor is already assigned to an overlapping exam."

	// ─── Session engine ────────────────────────────────────────────────
	case ErrSessionConflict:
		return "An active exam session already exists."
	case ErrSessionSubmitted:
		return "The session has already been submitted."
	case ErrSessionSuspended:
		return "The session is suspended."
	case ErrSuspensionSticky:
		return "The enrollment was flagged after a suspension and cannot be resumed."
	case ErrEnrollmentDone:
		return "The exam has already been completed for this enrollment."
	case ErrQuestionNotInExam:
		return "The question does not belong to this exam."
	case ErrNotShortAnswer:
		return "Manual grading applies to short-answer questions only."
	case ErrMarksOutOfRange:
		return "Awarded marks are outside the question's range."
	case ErrNotSuspended:
		return "The session is not suspended."
	case ErrExamWindowClosed:
		return "The exam window has already closed."

	// ─── Concurrency / infrastructure ──────────────────────────────────
	case ErrConcurrentModification:
		return "The session was modified concurrently. Please retry."
	case ErrServiceUnavailable:
		return "A backing service is temporarily unavailable."
	case ErrInferenceUnavailable:
		return "The verification service is temporarily unavailable. Please retry."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "The file type is not supported."
	case ErrFileTooLarge:
		return "The file exceeds the size limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
