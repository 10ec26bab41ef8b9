package core

// Logger is implemented by any leveled logger.
// args may hold errors, map[string]interface{} extras and a Learner (the person to report).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Learner identifies the person taking an assessment, as carried by the API token.
type Learner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (l Learner) IsZero() bool { return l.ID == "" }
