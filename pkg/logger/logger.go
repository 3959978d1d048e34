package logger

import (
	"fmt"

	"go.uber.org/zap"
)

var log = zap.NewNop()

var serviceName = "default"

// Init подменяет no-op логгер боевым. Зовётся один раз из main.
func Init(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

func with() *zap.Logger {
	return log.With(zap.String("service", serviceName))
}

func Debug(format string, args ...interface{}) {
	with().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	with().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	with().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	with().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	with().Fatal(fmt.Sprintf(format, args...))
}
