package logger

import (
	"sync"

	"go.uber.org/zap"
)

var once sync.Once

// Init installs the global zap logger. Safe to call more than once.
func Init(dev bool) {
	once.Do(func() {
		var (
			zapLogger *zap.Logger
			err       error
		)
		if dev {
			zapLogger, err = zap.NewDevelopment()
		} else {
			zapLogger, err = zap.NewProduction()
		}
		if err != nil {
			panic(err)
		}
		zapLogger = zapLogger.Named("portal")
		zap.ReplaceGlobals(zapLogger)
		zapLogger.Sugar().Infof("📝 Logger initialized (dev=%v)", dev)
	})
}
