// Пакет postgres — Metadata Store: репозиторий таблицы files
// на pgxpool с миграциями golang-migrate.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Repo — репозиторий метаданных файлов.
// Pool потокобезопасен, репозиторий используется конкурентно.
type Repo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// New применяет миграции и создаёт пул соединений.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Repo, error) {
	if err := runMigrations(dsn, logger); err != nil {
		return nil, fmt.Errorf("миграции: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("проверка соединения: %w", err)
	}

	logger.Info("Подключение к базе данных установлено")

	return &Repo{
		pool:   pool,
		logger: logger.With(slog.String("component", "metadata_repo")),
	}, nil
}

// Ping проверяет доступность базы данных (для /health/ready).
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений.
func (r *Repo) Close() {
	r.pool.Close()
	r.logger.Info("Пул соединений закрыт")
}

// qb возвращает конструктор запросов с плейсхолдерами Postgres ($1, $2...).
func (r *Repo) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// runMigrations применяет embedded-миграции через pgx/stdlib.
// Отдельный *sql.DB: golang-migrate не работает поверх pgxpool.
func runMigrations(dsn string, logger *slog.Logger) error {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open pgx: %w", err)
	}
	defer sqldb.Close()

	driver, err := migratepg.WithInstance(sqldb, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("драйвер postgres: %w", err)
	}

	src, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("источник iofs: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate.NewWithInstance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Новых миграций нет")
			return nil
		}
		return fmt.Errorf("применение миграций: %w", err)
	}

	logger.Info("Миграции применены")
	return nil
}
