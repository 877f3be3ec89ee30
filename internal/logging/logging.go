// Package logging builds the process logger.
package logging

import "go.uber.org/zap"

// New returns a development logger for dev environments and a JSON
// production logger otherwise.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch env {
	case "dev", "development", "local":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger, nil
}
