package database

import (
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"SOSRadar/pkg/config"
	"SOSRadar/pkg/model"
)

var (
	// ErrNotFound 记录不存在（或不满足条件更新的前置状态）
	ErrNotFound = errors.New("record not found")
	// ErrActiveAlertExists 同一用户已存在进行中的SOS
	ErrActiveAlertExists = errors.New("active sos alert already exists")
	// ErrEmailTaken 邮箱已被其他用户使用
	ErrEmailTaken = errors.New("email already in use")
)

// activeAlertIndex 每个用户最多一条 active 告警，postgres 和 sqlite 都支持部分唯一索引
const activeAlertIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_sos_alerts_one_active ON sos_alerts (user_id) WHERE status = 'active'`

// Store 目录存储，按实体划分访问器
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 创建新的数据库连接
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	gormCfg := &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, errors.Wrap(err, "连接数据库失败")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "获取连接池失败")
	}

	// 设置连接池参数
	if cfg.Driver == "sqlite" {
		// 内存库每个连接是独立的数据库，且 sqlite 只允许单写
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "测试数据库连接失败")
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, logger: log.Named("database")}, nil
}

// Migrate 建表并创建单活跃告警约束
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&model.User{},
		&model.EmergencyContact{},
		&model.UserEmergencyContact{},
		&model.SOSAlert{},
		&model.DeliveryIntent{},
		&model.Notification{},
	)
	if err != nil {
		return errors.Wrap(err, "数据库迁移失败")
	}
	if err := s.db.Exec(activeAlertIndex).Error; err != nil {
		return errors.Wrap(err, "创建活跃告警唯一索引失败")
	}
	s.logger.Info("数据库迁移完成", zap.String("dialect", s.db.Dialector.Name()))
	return nil
}

// Ping 健康检查
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation 兼容 TranslateError 生效与未生效两种驱动返回
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "sqlstate 23505")
}

// notFound 将 gorm 的未找到错误转换为包内哨兵错误
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
