package logger

import (
	"go.uber.org/zap"
)

// New builds the application logger. Development mode switches to the
// console-friendly encoder.
func New(debug bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic("logger init: " + err.Error())
	}
	return log
}
