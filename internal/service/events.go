package service

// События и исходы для EventRecorder.
const (
	eventRegister  = "register"
	eventLogin     = "login"
	eventRotate    = "rotate"
	eventLogout    = "logout"
	eventRevoke    = "revoke"
	eventRevokeAll = "revoke_all"
	eventVerify    = "verify"

	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeConflict = "conflict"
	outcomeReuse    = "reuse"
	outcomeMissing  = "missing"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)
