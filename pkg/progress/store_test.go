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

package progress

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pingcap/stepflow/pkg/etcd"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/leakutil"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

type storeFactory func(t *testing.T) Store

func newTestMemoryStore(_ *testing.T) Store {
	return NewMemoryStore()
}

func newTestEtcdStore(t *testing.T) Store {
	s := &etcd.Tester{}
	s.SetUpTest(t)
	t.Cleanup(func() { s.TearDownTest(t) })
	return NewEtcdStore(s.Client, etcd.NewKeyLayout("/stepflow-test"))
}

func newTestSQLiteStore(t *testing.T) Store {
	store, err := OpenSQLStore(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func runStoreContract(t *testing.T, name string, f func(t *testing.T, store Store)) {
	factories := map[string]storeFactory{
		"memory": newTestMemoryStore,
		"etcd":   newTestEtcdStore,
		"sqlite": newTestSQLiteStore,
	}
	for kind, factory := range factories {
		factory := factory
		t.Run(fmt.Sprintf("%s/%s", kind, name), func(t *testing.T) {
			f(t, factory(t))
		})
	}
}

func TestInitThenGet(t *testing.T) {
	runStoreContract(t, "init", func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx, "job-1", "t1"))

		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, Record{TaskID: "t1", Step: StartStep, Percent: 0}, record)
	})
}

func TestUpdateKeepsTaskID(t *testing.T) {
	runStoreContract(t, "update", func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx, "job-1", "t1"))
		require.NoError(t, store.Update(ctx, "job-1", "task1", 20))
		require.NoError(t, store.Update(ctx, "job-1", "task2", 30))

		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, Record{TaskID: "t1", Step: "task2", Percent: 30}, record)
	})
}

func TestInitIsIdempotentOverwrite(t *testing.T) {
	runStoreContract(t, "reinit", func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx, "job-1", "t1"))
		require.NoError(t, store.Update(ctx, "job-1", "task2", 30))
		require.NoError(t, store.Init(ctx, "job-1", "t2"))

		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, Record{TaskID: "t2", Step: StartStep, Percent: 0}, record)
	})
}

func TestGetMissingRecord(t *testing.T) {
	runStoreContract(t, "missing", func(t *testing.T, store Store) {
		ctx := context.Background()
		record, err := store.Get(ctx, "never-created")
		require.NoError(t, err)
		require.Equal(t, EmptyRecord(), record)
		require.Equal(t, Record{TaskID: "<unknown>", Step: "<idle>", Percent: 0}, record)

		// an update without init leaves the task id unknown.
		require.NoError(t, store.Update(ctx, "no-init", "task1", 20))
		record, err = store.Get(ctx, "no-init")
		require.NoError(t, err)
		require.Equal(t, Record{TaskID: UnknownTaskID, Step: "task1", Percent: 20}, record)
	})
}

func TestDeleteIsTerminalAndIdempotent(t *testing.T) {
	runStoreContract(t, "delete", func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Delete(ctx, "job-x"))

		require.NoError(t, store.Init(ctx, "job-1", "t1"))
		require.NoError(t, store.Init(ctx, "job-10", "t10"))
		require.NoError(t, store.Delete(ctx, "job-1"))
		require.NoError(t, store.Delete(ctx, "job-1"))

		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, EmptyRecord(), record)

		// a job whose id extends the deleted one is untouched.
		record, err = store.Get(ctx, "job-10")
		require.NoError(t, err)
		require.Equal(t, "t10", record.TaskID)
	})
}

func TestConcurrentUpdatesOfParallelSteps(t *testing.T) {
	runStoreContract(t, "concurrent", func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx, "job-1", "t1"))

		var wg sync.WaitGroup
		errCh := make(chan error, 20)
		for _, step := range []string{"subtask1", "subtask2"} {
			step := step
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					errCh <- store.Update(ctx, "job-1", step, 50)
				}
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			require.NoError(t, err)
		}

		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, "t1", record.TaskID)
		require.Equal(t, 50, record.Percent)
		require.Contains(t, []string{"subtask1", "subtask2"}, record.Step)
	})
}

func TestInvalidArguments(t *testing.T) {
	runStoreContract(t, "invalid", func(t *testing.T, store Store) {
		ctx := context.Background()
		err := store.Update(ctx, "job-1", "task1", 101)
		require.True(t, cerror.ErrInvalidArgument.Equal(err))
		err = store.Update(ctx, "job-1", "task1", -1)
		require.True(t, cerror.ErrInvalidArgument.Equal(err))
		err = store.Update(ctx, "job-1", "", 10)
		require.True(t, cerror.ErrInvalidArgument.Equal(err))
		err = store.Init(ctx, "", "t1")
		require.True(t, cerror.ErrInvalidArgument.Equal(err))
		_, err = store.Get(ctx, "")
		require.True(t, cerror.ErrInvalidArgument.Equal(err))
		err = store.Delete(ctx, "")
		require.True(t, cerror.ErrInvalidArgument.Equal(err))

		// nothing was written by the rejected update.
		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, EmptyRecord(), record)
	})
}

func TestCorruptedPercent(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStore()
		store.hset("job-1", map[string]string{FieldPercent: "abc"})
		_, err := store.Get(context.Background(), "job-1")
		require.True(t, cerror.ErrInvalidProgressRecord.Equal(err))
	})

	t.Run("etcd", func(t *testing.T) {
		s := &etcd.Tester{}
		s.SetUpTest(t)
		defer s.TearDownTest(t)
		keys := etcd.NewKeyLayout("/stepflow-test")
		store := NewEtcdStore(s.Client, keys)

		ctx := s.Ctx(t)
		_, err := s.Client.Put(ctx, keys.ProgressFieldKey("job-1", FieldPercent), "abc")
		require.NoError(t, err)
		_, err = store.Get(ctx, "job-1")
		require.True(t, cerror.ErrInvalidProgressRecord.Equal(err))
	})

	t.Run("sqlite", func(t *testing.T) {
		store := newTestSQLiteStore(t).(*SQLStore)
		percent := "abc"
		require.NoError(t, store.db.Create(&progressRow{JobID: "job-1", Percent: &percent}).Error)
		_, err := store.Get(context.Background(), "job-1")
		require.True(t, cerror.ErrInvalidProgressRecord.Equal(err))
	})
}

func TestEtcdStoreUnavailable(t *testing.T) {
	s := &etcd.Tester{}
	s.SetUpTest(t)
	store := NewEtcdStore(s.Client, etcd.NewKeyLayout("/stepflow-test"))
	s.TearDownTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Init(ctx, "job-1", "t1")
	require.True(t, cerror.Is(err, cerror.ErrProgressStore))
	_, err = store.Get(ctx, "job-1")
	require.True(t, cerror.Is(err, cerror.ErrProgressStore))
	err = store.Delete(ctx, "job-1")
	require.True(t, cerror.Is(err, cerror.ErrProgressStore))
}
