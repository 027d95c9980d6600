package core

// Logger logs messages and reports them to the monitoring service.
// Args may be errors, map[string]interface{} extras, or the user.User concerned.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
