package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bountyboard/models"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

//go:generate mockgen -destination=./mocks/mock_repository.go -package=mocks bountyboard/service Repository

// Store is the set of persistence operations available both on the bare
// connection and inside a transactional unit.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, id int) (models.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)

	GetBalanceForUpdate(ctx context.Context, userID int) (int, error)
	AdjustBalance(ctx context.Context, userID, delta int) error
	AppendTransaction(ctx context.Context, userID, delta int, kind string, metadata map[string]interface{}) (models.Transaction, error)
	ListTransactions(ctx context.Context, userID int) ([]models.Transaction, error)

	CreateBounty(ctx context.Context, title, description string, reward, createdBy int) (models.Bounty, error)
	GetBountyForUpdate(ctx context.Context, id int) (models.Bounty, error)
	CompleteBounty(ctx context.Context, id, winnerID int) error
	ListBounties(ctx context.Context) ([]models.Bounty, error)

	AddApplication(ctx context.Context, bountyID, userID int) (models.Application, error)
	ListApplications(ctx context.Context, bountyID int) ([]models.Application, error)
	AddComment(ctx context.Context, bountyID, userID int, message string) (models.Comment, error)
	ListComments(ctx context.Context, bountyID int) ([]models.Comment, error)
	AddAttachment(ctx context.Context, bountyID, userID int, filename, filepath string) (models.Attachment, error)
	ListAttachments(ctx context.Context, bountyID int) ([]models.Attachment, error)
}

// Repository adds the atomic unit: fn runs against a transaction-bound Store
// and its effects persist only if fn returns nil.
type Repository interface {
	Store
	InTransaction(ctx context.Context, fn func(Store) error) error
}

// Notifier fans an event out to all connected clients. Best effort: it must
// never block the caller and delivery failures are not reported.
type Notifier interface {
	Broadcast(event string, payload interface{})
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrBountyNotFound     = errors.New("bounty not found")
	ErrNotCreator         = errors.New("only creator can complete")
	ErrNotOpen            = errors.New("not open")
)

type Service struct {
	repo      Repository
	notifier  Notifier
	jwtSecret string
}

func NewService(repo Repository, notifier Notifier, jwtSecret string) Service {
	return Service{
		repo:      repo,
		notifier:  notifier,
		jwtSecret: jwtSecret,
	}
}

func (s Service) Register(
	ctx context.Context,
	username, password string,
) (models.User, string, error) {
	hash, err := bcryptHash(password)
	if err != nil {
		return models.User{}, "", err
	}
	user, err := s.repo.CreateUser(ctx, username, hash)
	if err != nil {
		return models.User{}, "", err
	}
	token, err := generateJWT(user, s.jwtSecret)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func (s Service) Login(
	ctx context.Context,
	username, password string,
) (models.User, string, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, "", ErrInvalidCredentials
		}
		return models.User{}, "", err
	}
	if !bcryptCompare(user.PasswordHash, password) {
		return models.User{}, "", ErrInvalidCredentials
	}
	token, err := generateJWT(user, s.jwtSecret)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func (s Service) GetMe(ctx context.Context, userID int) (models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s Service) ListBounties(ctx context.Context) ([]models.Bounty, error) {
	return s.repo.ListBounties(ctx)
}

// PostBounty debits the creator by the reward and creates the bounty as one
// atomic unit. The creator's balance row stays locked until commit, so two
// concurrent posts from the same user serialize and cannot overdraw.
func (s Service) PostBounty(
	ctx context.Context,
	creatorID int,
	title, description string,
	reward int,
) (models.Bounty, error) {
	if title == "" || reward <= 0 {
		return models.Bounty{}, ErrInvalidInput
	}
	var bounty models.Bounty
	err := s.repo.InTransaction(ctx, func(store Store) error {
		balance, err := store.GetBalanceForUpdate(ctx, creatorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		if balance < reward {
			return ErrInsufficientFunds
		}
		if err := store.AdjustBalance(ctx, creatorID, -reward); err != nil {
			return err
		}
		_, err = store.AppendTransaction(
			ctx,
			creatorID,
			-reward,
			models.KindBountyPost,
			map[string]interface{}{"title": title},
		)
		if err != nil {
			return err
		}
		bounty, err = store.CreateBounty(ctx, title, description, reward, creatorID)
		return err
	})
	if err != nil {
		return models.Bounty{}, err
	}
	s.notifier.Broadcast("new_bounty", bounty)
	return bounty, nil
}

// CompleteBounty closes an open bounty and credits its reward to the winner
// as one atomic unit. The bounty row is locked first, so a second concurrent
// completion observes status=completed and fails without a double credit.
func (s Service) CompleteBounty(
	ctx context.Context,
	bountyID, completerID, winnerID int,
) error {
	if winnerID <= 0 {
		return ErrInvalidInput
	}
	err := s.repo.InTransaction(ctx, func(store Store) error {
		bounty, err := store.GetBountyForUpdate(ctx, bountyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBountyNotFound
			}
			return err
		}
		if bounty.CreatedBy != completerID {
			return ErrNotCreator
		}
		if bounty.Status != models.StatusOpen {
			return ErrNotOpen
		}
		if err := store.CompleteBounty(ctx, bountyID, winnerID); err != nil {
			return err
		}
		if err := store.AdjustBalance(ctx, winnerID, bounty.Reward); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		_, err = store.AppendTransaction(
			ctx,
			winnerID,
			bounty.Reward,
			models.KindBountyAward,
			map[string]interface{}{"bountyId": bountyID},
		)
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.Broadcast("bounty_completed", map[string]int{
		"bountyId": bountyID,
		"winnerId": winnerID,
	})
	return nil
}

func (s Service) Apply(
	ctx context.Context,
	bountyID, userID int,
) (models.Application, error) {
	app, err := s.repo.AddApplication(ctx, bountyID, userID)
	if err != nil {
		return models.Application{}, err
	}
	s.notifier.Broadcast("new_application", app)
	return app, nil
}

func (s Service) ListApplications(
	ctx context.Context,
	bountyID int,
) ([]models.Application, error) {
	return s.repo.ListApplications(ctx, bountyID)
}

func (s Service) AddComment(
	ctx context.Context,
	bountyID, userID int,
	message string,
) (models.Comment, error) {
	comment, err := s.repo.AddComment(ctx, bountyID, userID, message)
	if err != nil {
		return models.Comment{}, err
	}
	s.notifier.Broadcast("new_comment", comment)
	return comment, nil
}

func (s Service) ListComments(
	ctx context.Context,
	bountyID int,
) ([]models.Comment, error) {
	return s.repo.ListComments(ctx, bountyID)
}

func (s Service) AddAttachment(
	ctx context.Context,
	bountyID, userID int,
	filename, filepath string,
) (models.Attachment, error) {
	att, err := s.repo.AddAttachment(ctx, bountyID, userID, filename, filepath)
	if err != nil {
		return models.Attachment{}, err
	}
	s.notifier.Broadcast("new_attachment", att)
	return att, nil
}

func (s Service) ListAttachments(
	ctx context.Context,
	bountyID int,
) ([]models.Attachment, error) {
	return s.repo.ListAttachments(ctx, bountyID)
}

func (s Service) ListMyTransactions(
	ctx context.Context,
	userID int,
) ([]models.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID)
}

func bcryptHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(
		[]byte(password),
		bcrypt.DefaultCost,
	)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func bcryptCompare(hashed, password string) bool {
	err := bcrypt.CompareHashAndPassword(
		[]byte(hashed),
		[]byte(password),
	)
	return err == nil
}

func generateJWT(
	user models.User,
	secret string,
) (string, error) {
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"id":       user.ID,
			"username": user.Username,
			"exp":      time.Now().Add(7 * 24 * time.Hour).Unix(),
		},
	)
	tokenStr, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}
	return tokenStr, nil
}
