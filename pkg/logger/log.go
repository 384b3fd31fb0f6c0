package logger

import "go.uber.org/zap"

// NewLogger пишет в stdout и, если указан, в файл.
func NewLogger(file string) *zap.Logger {
	outputs := []string{"stdout"}
	if file != "" {
		outputs = append(outputs, file)
	}

	dualConfig := zap.Config{
		Encoding:         "console",
		Level:            zap.NewAtomicLevelAt(zap.DebugLevel),
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}

	dualLogger, err := dualConfig.Build()
	if err != nil {
		panic(err)
	}

	return dualLogger
}
