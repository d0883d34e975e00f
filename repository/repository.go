package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"bountyboard/models"
	"bountyboard/service"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// queryer is satisfied by both *sql.DB and *sql.Tx, so the same methods
// serve direct reads and the transactional unit.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
	q  queryer
}

func NewPostgresRepository(db *sql.DB) PostgresRepository {
	return PostgresRepository{db: db, q: db}
}

// InTransaction runs fn against a transaction-bound copy of the repository.
// Row locks taken inside fn (FOR UPDATE reads) are held until commit or
// rollback, which is what serializes concurrent units on the same rows.
func (r PostgresRepository) InTransaction(
	ctx context.Context,
	fn func(service.Store) error,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(PostgresRepository{db: r.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r PostgresRepository) GetUserByUsername(
	ctx context.Context,
	username string,
) (models.User, error) {
	row := r.q.QueryRowContext(
		ctx,
		"SELECT id, username, password_hash, balance FROM users WHERE username=$1",
		username,
	)
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Balance)
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (r PostgresRepository) GetUserByID(
	ctx context.Context,
	id int,
) (models.User, error) {
	row := r.q.QueryRowContext(
		ctx,
		"SELECT id, username, password_hash, balance FROM users WHERE id=$1",
		id,
	)
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Balance)
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (r PostgresRepository) CreateUser(
	ctx context.Context,
	username, passwordHash string,
) (models.User, error) {
	var u models.User
	err := r.q.QueryRowContext(
		ctx,
		"INSERT INTO users (username, password_hash, balance) VALUES ($1, $2, 100) "+
			"RETURNING id, username, password_hash, balance",
		username, passwordHash,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Balance)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.User{}, service.ErrUsernameTaken
		}
		return models.User{}, err
	}
	return u, nil
}

func (r PostgresRepository) GetBalanceForUpdate(
	ctx context.Context,
	userID int,
) (int, error) {
	var balance int
	err := r.q.QueryRowContext(
		ctx,
		"SELECT balance FROM users WHERE id=$1 FOR UPDATE",
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r PostgresRepository) AdjustBalance(
	ctx context.Context,
	userID, delta int,
) error {
	res, err := r.q.ExecContext(
		ctx,
		"UPDATE users SET balance=balance+$1 WHERE id=$2",
		delta, userID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r PostgresRepository) AppendTransaction(
	ctx context.Context,
	userID, delta int,
	kind string,
	metadata map[string]interface{},
) (models.Transaction, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return models.Transaction{}, err
	}
	var t models.Transaction
	err = r.q.QueryRowContext(
		ctx,
		"INSERT INTO transactions (id, user_id, change_amount, kind, metadata) "+
			"VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING id, user_id, change_amount, kind, metadata, created_at",
		uuid.NewString(), userID, delta, kind, raw,
	).Scan(&t.ID, &t.UserID, &t.ChangeAmount, &t.Kind, &t.Metadata, &t.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}

func (r PostgresRepository) ListTransactions(
	ctx context.Context,
	userID int,
) ([]models.Transaction, error) {
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT id, user_id, change_amount, kind, metadata, created_at
		 FROM transactions
		 WHERE user_id=$1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.ChangeAmount,
			&t.Kind,
			&t.Metadata,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (r PostgresRepository) CreateBounty(
	ctx context.Context,
	title, description string,
	reward, createdBy int,
) (models.Bounty, error) {
	var b models.Bounty
	var assignedTo sql.NullInt64
	err := r.q.QueryRowContext(
		ctx,
		"INSERT INTO bounties (title, description, reward, created_by) "+
			"VALUES ($1, $2, $3, $4) "+
			"RETURNING id, title, description, reward, status, created_by, assigned_to, created_at, updated_at",
		title, description, reward, createdBy,
	).Scan(
		&b.ID,
		&b.Title,
		&b.Description,
		&b.Reward,
		&b.Status,
		&b.CreatedBy,
		&assignedTo,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return models.Bounty{}, err
	}
	b.AssignedTo = nullableID(assignedTo)
	return b, nil
}

func (r PostgresRepository) GetBountyForUpdate(
	ctx context.Context,
	id int,
) (models.Bounty, error) {
	var b models.Bounty
	var assignedTo sql.NullInt64
	err := r.q.QueryRowContext(
		ctx,
		"SELECT id, title, description, reward, status, created_by, assigned_to, created_at, updated_at "+
			"FROM bounties WHERE id=$1 FOR UPDATE",
		id,
	).Scan(
		&b.ID,
		&b.Title,
		&b.Description,
		&b.Reward,
		&b.Status,
		&b.CreatedBy,
		&assignedTo,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return models.Bounty{}, err
	}
	b.AssignedTo = nullableID(assignedTo)
	return b, nil
}

func (r PostgresRepository) CompleteBounty(
	ctx context.Context,
	id, winnerID int,
) error {
	_, err := r.q.ExecContext(
		ctx,
		"UPDATE bounties SET status=$1, assigned_to=$2, updated_at=now() WHERE id=$3",
		models.StatusCompleted, winnerID, id,
	)
	return err
}

func (r PostgresRepository) ListBounties(
	ctx context.Context,
) ([]models.Bounty, error) {
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT b.id, b.title, b.description, b.reward, b.status,
		        b.created_by, b.assigned_to, b.created_at, b.updated_at,
		        u.username AS created_by_name
		 FROM bounties b JOIN users u ON b.created_by=u.id
		 ORDER BY b.created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bounties []models.Bounty
	for rows.Next() {
		var b models.Bounty
		var assignedTo sql.NullInt64
		if err := rows.Scan(
			&b.ID,
			&b.Title,
			&b.Description,
			&b.Reward,
			&b.Status,
			&b.CreatedBy,
			&assignedTo,
			&b.CreatedAt,
			&b.UpdatedAt,
			&b.CreatedByName,
		); err != nil {
			return nil, err
		}
		b.AssignedTo = nullableID(assignedTo)
		bounties = append(bounties, b)
	}
	return bounties, rows.Err()
}

func (r PostgresRepository) AddApplication(
	ctx context.Context,
	bountyID, userID int,
) (models.Application, error) {
	var a models.Application
	err := r.q.QueryRowContext(
		ctx,
		"INSERT INTO applications (bounty_id, user_id) VALUES ($1, $2) "+
			"RETURNING id, bounty_id, user_id, created_at",
		bountyID, userID,
	).Scan(&a.ID, &a.BountyID, &a.UserID, &a.CreatedAt)
	if err != nil {
		return models.Application{}, err
	}
	return a, nil
}

func (r PostgresRepository) ListApplications(
	ctx context.Context,
	bountyID int,
) ([]models.Application, error) {
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT a.id, a.bounty_id, a.user_id, a.created_at, u.username
		 FROM applications a JOIN users u ON a.user_id=u.id
		 WHERE a.bounty_id=$1`,
		bountyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applications []models.Application
	for rows.Next() {
		var a models.Application
		if err := rows.Scan(
			&a.ID,
			&a.BountyID,
			&a.UserID,
			&a.CreatedAt,
			&a.Username,
		); err != nil {
			return nil, err
		}
		applications = append(applications, a)
	}
	return applications, rows.Err()
}

func (r PostgresRepository) AddComment(
	ctx context.Context,
	bountyID, userID int,
	message string,
) (models.Comment, error) {
	var c models.Comment
	err := r.q.QueryRowContext(
		ctx,
		"INSERT INTO comments (bounty_id, user_id, message) VALUES ($1, $2, $3) "+
			"RETURNING id, bounty_id, user_id, message, created_at",
		bountyID, userID, message,
	).Scan(&c.ID, &c.BountyID, &c.UserID, &c.Message, &c.CreatedAt)
	if err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

func (r PostgresRepository) ListComments(
	ctx context.Context,
	bountyID int,
) ([]models.Comment, error) {
	rows, err := r.q.QueryContext(
		ctx,
		`SELECT c.id, c.bounty_id, c.user_id, c.message, c.created_at, u.username
		 FROM comments c JOIN users u ON c.user_id=u.id
		 WHERE c.bounty_id=$1
		 ORDER BY c.created_at ASC`,
		bountyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(
			&c.ID,
			&c.BountyID,
			&c.UserID,
			&c.Message,
			&c.CreatedAt,
			&c.Username,
		); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r PostgresRepository) AddAttachment(
	ctx context.Context,
	bountyID, userID int,
	filename, filepath string,
) (models.Attachment, error) {
	var a models.Attachment
	err := r.q.QueryRowContext(
		ctx,
		"INSERT INTO attachments (bounty_id, user_id, filename, filepath) "+
			"VALUES ($1, $2, $3, $4) "+
			"RETURNING id, bounty_id, user_id, filename, filepath, created_at",
		bountyID, userID, filename, filepath,
	).Scan(&a.ID, &a.BountyID, &a.UserID, &a.Filename, &a.Filepath, &a.CreatedAt)
	if err != nil {
		return models.Attachment{}, err
	}
	return a, nil
}

func (r PostgresRepository) ListAttachments(
	ctx context.Context,
	bountyID int,
) ([]models.Attachment, error) {
	rows, err := r.q.QueryContext(
		ctx,
		"SELECT id, bounty_id, user_id, filename, filepath, created_at "+
			"FROM attachments WHERE bounty_id=$1",
		bountyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(
			&a.ID,
			&a.BountyID,
			&a.UserID,
			&a.Filename,
			&a.Filepath,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func nullableID(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	id := int(v.Int64)
	return &id
}
