package models

// Состояния последовательности логина (машина состояний LoginAutomator)
const (
	LoginStateNotStarted   = "NOT_STARTED"
	LoginStateNavigated    = "NAVIGATED"
	LoginStateFormFilled   = "FORM_FILLED"
	LoginStateSubmitted    = "SUBMITTED"
	LoginStateTwoFAPending = "TWOFA_PENDING"
	LoginStateSuccess      = "VERIFIED_SUCCESS"
	LoginStateFailure      = "VERIFIED_FAILURE"
)
