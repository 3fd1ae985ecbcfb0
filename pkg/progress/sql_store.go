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
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/orm"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQL drivers accepted by OpenSQLStore.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const progressTableName = "progress_records"

// progressRow is the table model of a progress record. A field is NULL until
// written, the way a missing hash field reads as its default.
type progressRow struct {
	JobID     string    `gorm:"column:job_id;type:varchar(128);primaryKey"`
	TaskID    *string   `gorm:"column:task_id;type:varchar(128)"`
	Step      *string   `gorm:"column:step;type:varchar(256)"`
	Percent   *string   `gorm:"column:percent;type:varchar(16)"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements schema.Tabler.
func (progressRow) TableName() string {
	return progressTableName
}

func (r *progressRow) fields() map[string]string {
	fields := make(map[string]string, 3)
	if r.TaskID != nil {
		fields[FieldTaskID] = *r.TaskID
	}
	if r.Step != nil {
		fields[FieldStep] = *r.Step
	}
	if r.Percent != nil {
		fields[FieldPercent] = *r.Percent
	}
	return fields
}

// SQLStore is a Store backed by a relational database through gorm, one row
// per job.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a SQLStore on an opened gorm connection. Initialize
// must be called before use unless the table already exists.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLStore opens the database named by driver and dsn, and creates the
// progress table if needed.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, cerror.ErrInvalidArgument.GenWithStackByArgs("unknown sql driver " + strconv.Quote(driver))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: orm.NewOrmLogger(log.L(),
			orm.WithSlowThreshold(time.Second),
			orm.WithIgnoreTraceRecordNotFoundErr()),
	})
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrProgressStore, err, "open", "")
	}
	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, cerror.WrapError(cerror.ErrProgressStore, err, "open", "")
		}
		// sqlite serializes writers
		sqlDB.SetMaxOpenConns(1)
	}
	s := NewSQLStore(db)
	if err := s.Initialize(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Info("sql progress store opened", zap.String("driver", driver))
	return s, nil
}

// Initialize creates the progress table if it does not exist.
func (s *SQLStore) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&progressRow{}); err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, "initialize", "")
	}
	return nil
}

// Init implements Store.
func (s *SQLStore) Init(ctx context.Context, jobID, taskID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	step, percent := StartStep, strconv.Itoa(DefaultPercent)
	row := &progressRow{JobID: jobID, TaskID: &taskID, Step: &step, Percent: &percent}
	if err := s.upsert(ctx, row, "task_id", "step", "percent", "updated_at"); err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, opInit, jobID)
	}
	log.Debug("progress initialized", zap.String("jobID", jobID), zap.String("taskID", taskID))
	return nil
}

// Update implements Updater.
func (s *SQLStore) Update(ctx context.Context, jobID, step string, percent int) error {
	if err := checkUpdate(jobID, step, percent); err != nil {
		return err
	}
	p := strconv.Itoa(percent)
	row := &progressRow{JobID: jobID, Step: &step, Percent: &p}
	if err := s.upsert(ctx, row, "step", "percent", "updated_at"); err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, opUpdate, jobID)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, jobID string) (Record, error) {
	if err := checkJobID(jobID); err != nil {
		return Record{}, err
	}
	var rows []progressRow
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Limit(1).Find(&rows).Error
	if err != nil {
		return Record{}, cerror.WrapError(cerror.ErrProgressStore, err, opGet, jobID)
	}
	if len(rows) == 0 {
		return EmptyRecord(), nil
	}
	return recordFromFields(jobID, rows[0].fields())
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, jobID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&progressRow{}).Error
	if err != nil {
		return cerror.WrapError(cerror.ErrProgressStore, err, opDelete, jobID)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(sqlDB.Close())
}

func (s *SQLStore) upsert(ctx context.Context, row *progressRow, columns ...string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(row).Error
}
