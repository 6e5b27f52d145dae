package db

import (
	"os"
	"path/filepath"
	"time"

	"balcao/config"
	"balcao/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	// Todas as colunas de data ficam em UTC; as comparações no sqlite são textuais.
	gorm.NowFunc = func() time.Time { return time.Now().UTC() }
}

// Connect abre conexão com o DB escolhido em conf.Database (sqlite3 por padrão).
// É o único ponto que conhece o backend; os stores só recebem *gorm.DB.
func Connect(conf config.Configuration) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch conf.Database {
	case "postgres", "postgresql":
		logrus.Info("db: utilizando conexão com o postgresql")
		path := "host=" + conf.DbHost + " port=" + conf.DbPort
		path += " user=" + conf.DbUser + " dbname=" + conf.DbName
		path += " password=" + conf.DbPass
		db, err = gorm.Open("postgres", path)
	default:
		logrus.Info("db: utilizando conexão com o sqlite3")
		file := conf.DbPath
		if file == "" {
			file = "db/database.db"
		}
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, errors.Wrap(err, "db: create sqlite dir")
		}
		db, err = gorm.Open("sqlite3", file+"?_busy_timeout=5000")
		if err == nil {
			// sqlite serializa escritas; uma conexão evita "database is locked".
			db.DB().SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "db: connect")
	}

	db.SetLogger(logrus.StandardLogger())
	db.LogMode(logrus.IsLevelEnabled(logrus.DebugLevel))

	if conf.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates/updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.ConversationState{},
		&models.Event{},
		&models.Preorder{},
		&models.OutboxItem{},
		&models.CampaignRunItem{},
		&models.GroupCampaignRunItem{},
		&models.MessageLog{},
		&models.AuditEvent{},
		&models.TenantSettings{},
		&models.WhatsAppConfig{},
		&models.Product{},
	).Error
	return errors.Wrap(err, "db: automigrate")
}
