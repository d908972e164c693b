package constant

const (
	DefaultTokenType = "Bearer"

	// Login methods recorded in login_logs.
	LoginMethodPassword = "password"
	LoginMethodRefresh  = "refresh"
	LoginMethodDeniedIP = "denied_ip"

	// Security alert written when an already-rotated refresh token is
	// presented again.
	LoginMethodReuseAlert = "refresh_reuse"
)
