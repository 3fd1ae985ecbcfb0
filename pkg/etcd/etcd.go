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

package etcd

import (
	"context"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/stepflow/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
)

const (
	progressKeySegment   = "workflow:"
	progressKeySuffix    = ":progress"
	queueKeySegment      = "/queue/"
	claimKeySegment      = "/claim/"
	submissionKeySegment = "/submission/"
	statusKeySuffix      = "/status"
)

// KeyLayout derives every etcd key stepflow uses from one key prefix.
//
//	<prefix>/workflow:<job_id>:progress/<field>   progress record fields
//	<prefix>/queue/<submission_id>                queued submission envelopes
//	<prefix>/claim/<submission_id>                worker claims, bound to a lease
//	<prefix>/submission/<submission_id>/status    dispatch status
type KeyLayout struct {
	prefix string
}

// NewKeyLayout creates a KeyLayout. A trailing slash of prefix is ignored.
func NewKeyLayout(prefix string) KeyLayout {
	return KeyLayout{prefix: strings.TrimSuffix(prefix, "/")}
}

// Prefix returns the root prefix of the layout.
func (l KeyLayout) Prefix() string {
	return l.prefix
}

// ProgressKey returns the key of the hash that holds the progress record of a job.
func (l KeyLayout) ProgressKey(jobID string) string {
	return l.prefix + "/" + progressKeySegment + jobID + progressKeySuffix
}

// ProgressFieldKey returns the key holding one field of a progress record.
func (l KeyLayout) ProgressFieldKey(jobID, field string) string {
	return l.ProgressKey(jobID) + "/" + field
}

// ProgressFieldPrefix returns the prefix that covers every field of a progress record.
func (l KeyLayout) ProgressFieldPrefix(jobID string) string {
	return l.ProgressKey(jobID) + "/"
}

// QueuePrefix returns the prefix of all queued submissions.
func (l KeyLayout) QueuePrefix() string {
	return l.prefix + queueKeySegment
}

// QueueKey returns the key of a queued submission.
func (l KeyLayout) QueueKey(submissionID string) string {
	return l.QueuePrefix() + submissionID
}

// ClaimPrefix returns the prefix of all claims.
func (l KeyLayout) ClaimPrefix() string {
	return l.prefix + claimKeySegment
}

// ClaimKey returns the key a worker creates when it claims a submission.
func (l KeyLayout) ClaimKey(submissionID string) string {
	return l.ClaimPrefix() + submissionID
}

// StatusKey returns the key holding the dispatch status of a submission.
func (l KeyLayout) StatusKey(submissionID string) string {
	return l.prefix + submissionKeySegment + submissionID + statusKeySuffix
}

// SubmissionIDFromQueueKey extracts the submission id from a queue key.
func (l KeyLayout) SubmissionIDFromQueueKey(key string) (string, error) {
	if !strings.HasPrefix(key, l.QueuePrefix()) {
		return "", cerrors.ErrDecodeFailed.GenWithStackByArgs("not a queue key: " + key)
	}
	id := strings.TrimPrefix(key, l.QueuePrefix())
	if id == "" || strings.Contains(id, "/") {
		return "", cerrors.ErrDecodeFailed.GenWithStackByArgs("malformed queue key: " + key)
	}
	return id, nil
}

// FieldFromProgressKey extracts the field name of a progress field key.
func (l KeyLayout) FieldFromProgressKey(jobID, key string) (string, error) {
	prefix := l.ProgressFieldPrefix(jobID)
	if !strings.HasPrefix(key, prefix) {
		return "", cerrors.ErrDecodeFailed.GenWithStackByArgs("not a progress key of " + jobID + ": " + key)
	}
	return strings.TrimPrefix(key, prefix), nil
}

// CreateRawEtcdClient creates a clientv3.Client connected to the endpoints.
func CreateRawEtcdClient(ctx context.Context, endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)

	cli, err := clientv3.New(clientv3.Config{
		Context:     ctx,
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		LogConfig:   &logConfig,
		DialOptions: []grpc.DialOption{
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  time.Second,
					Multiplier: 1.1,
					Jitter:     0.1,
					MaxDelay:   3 * time.Second,
				},
				MinConnectTimeout: 3 * time.Second,
			}),
		},
	})
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrEtcdAPIError, errors.Trace(err))
	}
	log.Info("etcd client created", zap.Strings("endpoints", endpoints))
	return cli, nil
}
