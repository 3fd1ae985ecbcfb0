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

package errors

import (
	"context"

	"github.com/pingcap/errors"
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error.
// If given `err` is nil, returns a nil error, which a the different behavior
// against `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByCause(args...)
}

// IsRetryableError check the error is safe or worth to retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	switch errors.Cause(err) {
	case context.Canceled, context.DeadlineExceeded:
		return false
	}
	return true
}

// RFCCode returns the RFC code of the first normalized error found along the
// cause chain of err.
func RFCCode(err error) (errors.RFCErrorCode, bool) {
	type causer interface {
		Cause() error
	}
	for err != nil {
		if terr, ok := err.(*errors.Error); ok {
			return terr.RFCCode(), true
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return "", false
}

// Is reports whether err is, or is caused by, the normalized error rfcError.
func Is(err error, rfcError *errors.Error) bool {
	if err == nil {
		return false
	}
	if rfcError.Equal(err) {
		return true
	}
	code, ok := RFCCode(err)
	return ok && code == rfcError.RFCCode()
}
