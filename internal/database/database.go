package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"pricewatch/internal/models"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	// ErrItemNotFound indica que o item não existe (ou foi removido durante o ciclo)
	ErrItemNotFound = errors.New("item não encontrado")
	// ErrDuplicateItem indica que o usuário já monitora a URL
	ErrDuplicateItem = errors.New("este produto já está sendo monitorado")
	// ErrInvalidItem indica dados de criação inválidos
	ErrInvalidItem = errors.New("item inválido")
)

var itemColumns = []string{
	"i.id", "i.user_id", "i.url", "i.name", "i.image_url",
	"i.initial_price", "i.current_price", "i.target_price",
	"i.status", "i.last_scraped_at", "i.created_at",
	"u.email", "u.telegram_chat_id",
}

// DB encapsula a conexão com o banco de dados
type DB struct {
	conn   *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

// New abre o banco (sqlite3 ou postgres) e cria as tabelas necessárias
func New(driver, dsn string) (*DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// Um único escritor; também mantém ":memory:" em uma só conexão
		conn.SetMaxOpenConns(1)
	}

	db := NewWithConn(conn, driver)
	if err := db.init(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// NewWithConn usa uma conexão já aberta sem criar tabelas
func NewWithConn(conn *sql.DB, driver string) *DB {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return &DB{
		conn:   conn,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Close fecha a conexão com o banco de dados
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifica se o banco responde
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// init cria as tabelas necessárias
func (db *DB) init(ctx context.Context) error {
	stmts := sqliteSchema
	if db.driver == DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("criar schema: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT,
		telegram_chat_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		name TEXT,
		image_url TEXT,
		initial_price TEXT NOT NULL,
		current_price TEXT NOT NULL,
		target_price TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		last_scraped_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_status ON items (status)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT,
		telegram_chat_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		name TEXT,
		image_url TEXT,
		initial_price NUMERIC(12,2) NOT NULL,
		current_price NUMERIC(12,2) NOT NULL,
		target_price NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		last_scraped_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_status ON items (status)`,
}

// AddUser cadastra um usuário e devolve o ID
func (db *DB) AddUser(ctx context.Context, email string, telegramChatID int64) (int64, error) {
	return db.insert(ctx, db.sb.Insert("users").
		Columns("email", "telegram_chat_id").
		Values(nullString(email), nullInt64(telegramChatID)))
}

// AddItem adiciona um novo item ao monitoramento.
// O preço atual começa igual ao preço inicial observado na criação.
func (db *DB) AddItem(ctx context.Context, item models.Item) (int64, error) {
	if item.URL == "" || item.UserID == 0 {
		return 0, fmt.Errorf("%w: url e usuário são obrigatórios", ErrInvalidItem)
	}
	if !item.TargetPrice.IsPositive() {
		return 0, fmt.Errorf("%w: preço alvo deve ser positivo", ErrInvalidItem)
	}
	if item.Status == "" {
		item.Status = models.StatusActive
	}
	if !item.Status.Valid() {
		return 0, fmt.Errorf("%w: status %q", ErrInvalidItem, item.Status)
	}
	current := item.CurrentPrice
	if current.IsZero() {
		current = item.InitialPrice
	}

	id, err := db.insert(ctx, db.sb.Insert("items").
		Columns("user_id", "url", "name", "image_url", "initial_price", "current_price", "target_price", "status").
		Values(item.UserID, item.URL, nullString(item.Name), nullString(item.ImageURL),
			item.InitialPrice, current, item.TargetPrice, string(item.Status)))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateItem
		}
		return 0, err
	}
	return id, nil
}

// ListActive retorna o retrato de todos os itens ativos, em ordem de ID
func (db *DB) ListActive(ctx context.Context) ([]models.Item, error) {
	query, args, err := db.selectItems().
		Where(sq.Eq{"i.status": string(models.StatusActive)}).
		OrderBy("i.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("buscar itens ativos: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem retorna um item pelo ID
func (db *DB) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	query, args, err := db.selectItems().Where(sq.Eq{"i.id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	item, err := scanItem(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem grava o resultado de uma extração bem-sucedida em um único UPDATE
func (db *DB) UpdateItem(ctx context.Context, id int64, upd models.ItemUpdate) error {
	scrapedAt := upd.LastScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}

	b := db.sb.Update("items").Set("last_scraped_at", scrapedAt.UTC())
	if upd.CurrentPrice != nil {
		b = b.Set("current_price", upd.CurrentPrice.Round(2))
	}
	if upd.Name != nil {
		b = b.Set("name", *upd.Name)
	}
	if upd.ImageURL != nil {
		b = b.Set("image_url", *upd.ImageURL)
	}

	return db.execOne(ctx, b.Where(sq.Eq{"id": id}))
}

// SetStatus altera o status de um item (ação do dono, nunca do ciclo de varredura)
func (db *DB) SetStatus(ctx context.Context, id int64, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidItem, status)
	}
	return db.execOne(ctx, db.sb.Update("items").Set("status", string(status)).Where(sq.Eq{"id": id}))
}

// DeleteItem remove um item do monitoramento
func (db *DB) DeleteItem(ctx context.Context, id int64) error {
	return db.execOne(ctx, db.sb.Delete("items").Where(sq.Eq{"id": id}))
}

func (db *DB) selectItems() sq.SelectBuilder {
	return db.sb.Select(itemColumns...).
		From("items i").
		LeftJoin("users u ON u.id = i.user_id")
}

func (db *DB) execOne(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (db *DB) insert(ctx context.Context, b sq.InsertBuilder) (int64, error) {
	if db.driver == DriverPostgres {
		query, args, err := b.Suffix("RETURNING id").ToSql()
		if err != nil {
			return 0, err
		}
		var id int64
		if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		item        models.Item
		name        sql.NullString
		imageURL    sql.NullString
		status      string
		lastScraped sql.NullTime
		createdAt   sql.NullTime
		email       sql.NullString
		chatID      sql.NullInt64
	)
	err := row.Scan(&item.ID, &item.UserID, &item.URL, &name, &imageURL,
		&item.InitialPrice, &item.CurrentPrice, &item.TargetPrice,
		&status, &lastScraped, &createdAt, &email, &chatID)
	if err != nil {
		return models.Item{}, err
	}

	item.Name = name.String
	item.ImageURL = imageURL.String
	item.Status = models.Status(status)
	if lastScraped.Valid {
		item.LastScrapedAt = lastScraped.Time
	}
	if createdAt.Valid {
		item.CreatedAt = createdAt.Time
	}
	item.Owner = models.Recipient{
		UserID:         item.UserID,
		Email:          email.String,
		TelegramChatID: chatID.Int64,
	}
	return item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
