// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package orm

import (
	"context"
	"fmt"
	"time"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type loggerOptions struct {
	slowQuery     time.Duration
	quietNotFound bool
}

// LoggerOption configures the gorm logger built by NewOrmLogger.
type LoggerOption func(*loggerOptions)

// WithSlowThreshold reports queries slower than d as slow. Zero disables it.
func WithSlowThreshold(d time.Duration) LoggerOption {
	return func(o *loggerOptions) { o.slowQuery = d }
}

// WithIgnoreTraceRecordNotFoundErr logs queries matching no row at debug
// level instead of as errors.
func WithIgnoreTraceRecordNotFoundErr() LoggerOption {
	return func(o *loggerOptions) { o.quietNotFound = true }
}

// NewOrmLogger sends the gorm logs of the progress store to lg.
func NewOrmLogger(lg *zap.Logger, opts ...LoggerOption) gormlogger.Interface {
	l := &zapLogger{lg: lg}
	for _, opt := range opts {
		opt(&l.opts)
	}
	return l
}

type zapLogger struct {
	opts loggerOptions
	lg   *zap.Logger
}

// LogMode keeps the level of the zap logger.
func (l *zapLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *zapLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.lg.Info(fmt.Sprintf(msg, args...))
}

func (l *zapLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.lg.Warn(fmt.Sprintf(msg, args...))
}

func (l *zapLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.lg.Error(fmt.Sprintf(msg, args...))
}

func (l *zapLogger) Trace(
	_ context.Context, begin time.Time, query func() (string, int64), err error,
) {
	elapsed := time.Since(begin)
	sql, rows := query()
	fields := make([]zap.Field, 0, 4)
	fields = append(fields,
		zap.Duration("elapsed", elapsed), zap.String("sql", sql), zap.Int64("affected-rows", rows))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	notFound := errors.Cause(err) == gorm.ErrRecordNotFound
	if err != nil && !(notFound && l.opts.quietNotFound) {
		l.lg.Error("sql query failed", fields...)
	} else {
		l.lg.Debug("sql query", fields...)
	}
	if l.opts.slowQuery > 0 && elapsed > l.opts.slowQuery {
		l.lg.Warn("slow sql query", fields...)
	}
}
