package logger

type Level int

const (
	DEBUG Level = iota
	INFO
	NOTICE
	WARN
	ERROR
)

var levelNames = []string{
	"DEBUG",
	"INFO",
	"NOTICE",
	"WARN",
	"ERROR",
}

// String returns the string representation of a logging level.
func (l Level) String() string {
	return levelNames[l]
}
