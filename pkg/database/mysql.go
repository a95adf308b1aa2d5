// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"fmt"
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/trace/inject"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// NewDatabase opens the MySQL connection using GORM, with DBResolver
// read-write separation when primary/replica sources are configured.
func NewDatabase(cfg Database) (*gorm.DB, error) {
	defaultDSN := buildMySQLDSN(cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)

	logConfig := gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Silent,
		Colorful:                  false,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	}

	var gormLogger gormlogger.Interface
	if cfg.OutPut {
		gormLogger = NewGormLoggerAdapter(logConfig, gormlogger.Info)
	} else {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	// Open primary connection
	db, err := gorm.Open(mysql.Open(defaultDSN), &gorm.Config{
		Logger: gormLogger,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dataTablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Configure DBResolver if Primary or Replicas are provided
	hasPrimary := len(cfg.MySQL.Primary) > 0
	hasReplicas := len(cfg.MySQL.Replicas) > 0

	if hasPrimary || hasReplicas {
		resolverConfig := dbresolver.Config{
			TraceResolverMode: cfg.OutPut,
		}

		if hasPrimary {
			primaryDialectors, err := buildDialectors(cfg.MySQL.Primary)
			if err != nil {
				return nil, fmt.Errorf("failed to build primary dialectors: %w", err)
			}
			resolverConfig.Sources = primaryDialectors
		}

		if hasReplicas {
			replicasDialectors, err := buildDialectors(cfg.MySQL.Replicas)
			if err != nil {
				return nil, fmt.Errorf("failed to build replicas dialectors: %w", err)
			}
			resolverConfig.Replicas = replicasDialectors
		}

		err = db.Use(dbresolver.Register(resolverConfig).
			SetConnMaxIdleTime(GetConnMaxIdleTime(cfg.MaxIdleTime)).
			SetConnMaxLifetime(GetConnMaxLifetime(cfg.MaxLifetime)).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetMaxOpenConns(cfg.MaxOpenConns))
		if err != nil {
			return nil, fmt.Errorf("failed to register DBResolver plugin: %w", err)
		}
	}

	if err := inject.RegisterGormPlugin(db, false, false); err != nil {
		log.Warnw("failed to register OpenTelemetry gorm plugin", "error", err)
	}

	// Configure connection pool for primary connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB handle: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(GetConnMaxLifetime(cfg.MaxLifetime))
	sqlDB.SetConnMaxIdleTime(GetConnMaxIdleTime(cfg.MaxIdleTime))

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if hasPrimary || hasReplicas {
		log.Info("MySQL database connected successfully with DBResolver (read-write separation enabled)")
	} else {
		log.Info("MySQL database connected successfully")
	}

	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
