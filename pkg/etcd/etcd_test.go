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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	t.Parallel()

	l := NewKeyLayout("/stepflow/")
	require.Equal(t, "/stepflow", l.Prefix())
	require.Equal(t, "/stepflow/workflow:job-1:progress", l.ProgressKey("job-1"))
	require.Equal(t, "/stepflow/workflow:job-1:progress/percent", l.ProgressFieldKey("job-1", "percent"))
	require.Equal(t, "/stepflow/workflow:job-1:progress/", l.ProgressFieldPrefix("job-1"))
	require.Equal(t, "/stepflow/queue/sub-1", l.QueueKey("sub-1"))
	require.Equal(t, "/stepflow/claim/sub-1", l.ClaimKey("sub-1"))
	require.Equal(t, "/stepflow/claim/", l.ClaimPrefix())
	require.Equal(t, "/stepflow/submission/sub-1/status", l.StatusKey("sub-1"))

	// the field prefix of a job must not cover a job whose id extends it.
	require.NotContains(t, l.ProgressFieldKey("job-10", "step"), l.ProgressFieldPrefix("job-1"))

	field, err := l.FieldFromProgressKey("job-1", "/stepflow/workflow:job-1:progress/task_id")
	require.NoError(t, err)
	require.Equal(t, "task_id", field)
	_, err = l.FieldFromProgressKey("job-2", "/stepflow/workflow:job-1:progress/task_id")
	require.Error(t, err)
}

func TestSubmissionIDFromQueueKey(t *testing.T) {
	t.Parallel()

	l := NewKeyLayout("/stepflow")
	testCases := []struct {
		key      string
		expected string
		hasErr   bool
	}{
		{key: "/stepflow/queue/sub-1", expected: "sub-1"},
		{key: "/stepflow/queue/", hasErr: true},
		{key: "/stepflow/queue/a/b", hasErr: true},
		{key: "/other/queue/sub-1", hasErr: true},
	}
	for _, tc := range testCases {
		id, err := l.SubmissionIDFromQueueKey(tc.key)
		if tc.hasErr {
			require.Error(t, err, tc.key)
			continue
		}
		require.NoError(t, err, tc.key)
		require.Equal(t, tc.expected, id)
	}
}
