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
	"regexp"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func TestLoggerOpt(t *testing.T) {
	t.Parallel()

	var opts loggerOptions
	WithSlowThreshold(30 * time.Second)(&opts)
	require.Equal(t, 30*time.Second, opts.slowQuery)

	require.False(t, opts.quietNotFound)
	WithIgnoreTraceRecordNotFoundErr()(&opts)
	require.True(t, opts.quietNotFound)
}

func TestNewOrmLogger(t *testing.T) {
	t.Parallel()

	var buffer zaptest.Buffer
	zapLg, _, err := log.InitLoggerWithWriteSyncer(&log.Config{Level: "warn"}, &buffer, nil)
	require.NoError(t, err)

	lg := NewOrmLogger(zapLg, WithSlowThreshold(3*time.Second), WithIgnoreTraceRecordNotFoundErr())
	lg.Info(context.TODO(), "%s test", "info")
	require.Equal(t, 0, len(buffer.Lines()))

	lg.Warn(context.TODO(), "%s test", "warn")
	require.Regexp(t, regexp.QuoteMeta("warn test"), buffer.Stripped())
	buffer.Reset()

	lg.Error(context.TODO(), "%s test", "error")
	require.Regexp(t, regexp.QuoteMeta("error test"), buffer.Stripped())
	buffer.Reset()

	fc := func() (sql string, rowsAffected int64) { return "SELECT * FROM `progress_records`", 1 }
	lg.Trace(context.TODO(), time.Now(), fc, nil)
	require.Equal(t, 0, len(buffer.Lines()))

	lg.Trace(context.TODO(), time.Now().Add(-10*time.Second), fc, errors.New("error test"))
	require.Regexp(t, regexp.QuoteMeta("[ERROR]"), buffer.Stripped())
	require.Regexp(t, regexp.QuoteMeta(`["sql query failed"]`), buffer.Stripped())
	require.Regexp(t, regexp.QuoteMeta(`["slow sql query"]`), buffer.Stripped())
	require.Regexp(t, regexp.QuoteMeta(`[affected-rows=1] [error="error test"]`), buffer.Stripped())
	buffer.Reset()

	// record not found is a debug log once ignored
	lg.Trace(context.TODO(), time.Now(), fc, gorm.ErrRecordNotFound)
	require.Equal(t, 0, len(buffer.Lines()))
}
