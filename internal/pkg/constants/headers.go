package constants

const (
	HeaderTraceID  = "X-Trace-Id"
	HeaderAdminKey = "X-Admin-Key"
)
