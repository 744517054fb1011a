package s3

import (
	"fmt"

	"github.com/aws/smithy-go/logging"
	"github.com/gostratum/core/logx"
)

// sdkLogger forwards SDK wire logging into the core logger
type sdkLogger struct {
	logger logx.Logger
}

var _ logging.Logger = (*sdkLogger)(nil)

func (l *sdkLogger) Logf(classification logging.Classification, format string, v ...any) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, v...)
	switch classification {
	case logging.Warn:
		l.logger.Warn("aws sdk", logx.Any("detail", msg))
	default:
		l.logger.Debug("aws sdk", logx.Any("detail", msg))
	}
}
