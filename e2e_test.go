package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"bountyboard/handlers"
	"bountyboard/models"
	"bountyboard/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type memState struct {
	users        map[int]models.User
	userIDByName map[string]int
	bounties     map[int]models.Bounty
	transactions []models.Transaction
	applications []models.Application
	comments     []models.Comment
	attachments  []models.Attachment
	nextUserID   int
	nextBountyID int
	nextRowID    int
}

func newMemState() *memState {
	return &memState{
		users:        make(map[int]models.User),
		userIDByName: make(map[string]int),
		bounties:     make(map[int]models.Bounty),
		nextUserID:   1,
		nextBountyID: 1,
		nextRowID:    1,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, u := range s.users {
		c.users[id] = u
	}
	for name, id := range s.userIDByName {
		c.userIDByName[name] = id
	}
	for id, b := range s.bounties {
		c.bounties[id] = b
	}
	c.transactions = append([]models.Transaction(nil), s.transactions...)
	c.applications = append([]models.Application(nil), s.applications...)
	c.comments = append([]models.Comment(nil), s.comments...)
	c.attachments = append([]models.Attachment(nil), s.attachments...)
	c.nextUserID = s.nextUserID
	c.nextBountyID = s.nextBountyID
	c.nextRowID = s.nextRowID
	return c
}

// memStore implements service.Store without locking; inMemRepository wraps
// it with a mutex and snapshot-based rollback.
type memStore struct {
	s *memState
}

func (m memStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	id, ok := m.s.userIDByName[username]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return m.s.users[id], nil
}

func (m memStore) GetUserByID(ctx context.Context, id int) (models.User, error) {
	user, ok := m.s.users[id]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m memStore) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	if _, ok := m.s.userIDByName[username]; ok {
		return models.User{}, service.ErrUsernameTaken
	}
	user := models.User{
		ID:           m.s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      100,
	}
	m.s.nextUserID++
	m.s.users[user.ID] = user
	m.s.userIDByName[username] = user.ID
	return user, nil
}

func (m memStore) GetBalanceForUpdate(ctx context.Context, userID int) (int, error) {
	user, ok := m.s.users[userID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return user.Balance, nil
}

func (m memStore) AdjustBalance(ctx context.Context, userID, delta int) error {
	user, ok := m.s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Balance += delta
	m.s.users[userID] = user
	return nil
}

func (m memStore) AppendTransaction(
	ctx context.Context,
	userID, delta int,
	kind string,
	metadata map[string]interface{},
) (models.Transaction, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return models.Transaction{}, err
	}
	trans := models.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		ChangeAmount: delta,
		Kind:         kind,
		Metadata:     raw,
		CreatedAt:    time.Now(),
	}
	m.s.transactions = append(m.s.transactions, trans)
	return trans, nil
}

func (m memStore) ListTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	var out []models.Transaction
	for i := len(m.s.transactions) - 1; i >= 0; i-- {
		if m.s.transactions[i].UserID == userID {
			out = append(out, m.s.transactions[i])
		}
	}
	return out, nil
}

func (m memStore) CreateBounty(
	ctx context.Context,
	title, description string,
	reward, createdBy int,
) (models.Bounty, error) {
	now := time.Now()
	bounty := models.Bounty{
		ID:          m.s.nextBountyID,
		Title:       title,
		Description: description,
		Reward:      reward,
		Status:      models.StatusOpen,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.s.nextBountyID++
	m.s.bounties[bounty.ID] = bounty
	return bounty, nil
}

func (m memStore) GetBountyForUpdate(ctx context.Context, id int) (models.Bounty, error) {
	bounty, ok := m.s.bounties[id]
	if !ok {
		return models.Bounty{}, sql.ErrNoRows
	}
	return bounty, nil
}

func (m memStore) CompleteBounty(ctx context.Context, id, winnerID int) error {
	bounty, ok := m.s.bounties[id]
	if !ok {
		return sql.ErrNoRows
	}
	winner := winnerID
	bounty.Status = models.StatusCompleted
	bounty.AssignedTo = &winner
	bounty.UpdatedAt = time.Now()
	m.s.bounties[id] = bounty
	return nil
}

func (m memStore) ListBounties(ctx context.Context) ([]models.Bounty, error) {
	var out []models.Bounty
	for _, b := range m.s.bounties {
		b.CreatedByName = m.s.users[b.CreatedBy].Username
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m memStore) AddApplication(ctx context.Context, bountyID, userID int) (models.Application, error) {
	app := models.Application{
		ID:        m.s.nextRowID,
		BountyID:  bountyID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	m.s.nextRowID++
	m.s.applications = append(m.s.applications, app)
	return app, nil
}

func (m memStore) ListApplications(ctx context.Context, bountyID int) ([]models.Application, error) {
	var out []models.Application
	for _, a := range m.s.applications {
		if a.BountyID == bountyID {
			a.Username = m.s.users[a.UserID].Username
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memStore) AddComment(ctx context.Context, bountyID, userID int, message string) (models.Comment, error) {
	comment := models.Comment{
		ID:        m.s.nextRowID,
		BountyID:  bountyID,
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	m.s.nextRowID++
	m.s.comments = append(m.s.comments, comment)
	return comment, nil
}

func (m memStore) ListComments(ctx context.Context, bountyID int) ([]models.Comment, error) {
	var out []models.Comment
	for _, c := range m.s.comments {
		if c.BountyID == bountyID {
			c.Username = m.s.users[c.UserID].Username
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memStore) AddAttachment(
	ctx context.Context,
	bountyID, userID int,
	filename, filepath string,
) (models.Attachment, error) {
	att := models.Attachment{
		ID:        m.s.nextRowID,
		BountyID:  bountyID,
		UserID:    userID,
		Filename:  filename,
		Filepath:  filepath,
		CreatedAt: time.Now(),
	}
	m.s.nextRowID++
	m.s.attachments = append(m.s.attachments, att)
	return att, nil
}

func (m memStore) ListAttachments(ctx context.Context, bountyID int) ([]models.Attachment, error) {
	var out []models.Attachment
	for _, a := range m.s.attachments {
		if a.BountyID == bountyID {
			out = append(out, a)
		}
	}
	return out, nil
}

type inMemRepository struct {
	mu    sync.Mutex
	store memStore
}

func newInMemRepository() *inMemRepository {
	return &inMemRepository{store: memStore{s: newMemState()}}
}

// InTransaction serializes units with a coarse lock and restores a snapshot
// when fn fails, mirroring a database rollback.
func (r *inMemRepository) InTransaction(ctx context.Context, fn func(service.Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.store.s.clone()
	if err := fn(r.store); err != nil {
		*r.store.s = *snapshot
		return err
	}
	return nil
}

func (r *inMemRepository) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetUserByUsername(ctx, username)
}

func (r *inMemRepository) GetUserByID(ctx context.Context, id int) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetUserByID(ctx, id)
}

func (r *inMemRepository) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.CreateUser(ctx, username, passwordHash)
}

func (r *inMemRepository) GetBalanceForUpdate(ctx context.Context, userID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetBalanceForUpdate(ctx, userID)
}

func (r *inMemRepository) AdjustBalance(ctx context.Context, userID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AdjustBalance(ctx, userID, delta)
}

func (r *inMemRepository) AppendTransaction(
	ctx context.Context,
	userID, delta int,
	kind string,
	metadata map[string]interface{},
) (models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AppendTransaction(ctx, userID, delta, kind, metadata)
}

func (r *inMemRepository) ListTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListTransactions(ctx, userID)
}

func (r *inMemRepository) CreateBounty(
	ctx context.Context,
	title, description string,
	reward, createdBy int,
) (models.Bounty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.CreateBounty(ctx, title, description, reward, createdBy)
}

func (r *inMemRepository) GetBountyForUpdate(ctx context.Context, id int) (models.Bounty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetBountyForUpdate(ctx, id)
}

func (r *inMemRepository) CompleteBounty(ctx context.Context, id, winnerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.CompleteBounty(ctx, id, winnerID)
}

func (r *inMemRepository) ListBounties(ctx context.Context) ([]models.Bounty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListBounties(ctx)
}

func (r *inMemRepository) AddApplication(ctx context.Context, bountyID, userID int) (models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AddApplication(ctx, bountyID, userID)
}

func (r *inMemRepository) ListApplications(ctx context.Context, bountyID int) ([]models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListApplications(ctx, bountyID)
}

func (r *inMemRepository) AddComment(ctx context.Context, bountyID, userID int, message string) (models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AddComment(ctx, bountyID, userID, message)
}

func (r *inMemRepository) ListComments(ctx context.Context, bountyID int) ([]models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListComments(ctx, bountyID)
}

func (r *inMemRepository) AddAttachment(
	ctx context.Context,
	bountyID, userID int,
	filename, filepath string,
) (models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AddAttachment(ctx, bountyID, userID, filename, filepath)
}

func (r *inMemRepository) ListAttachments(ctx context.Context, bountyID int) ([]models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListAttachments(ctx, bountyID)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Broadcast(event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newTestServer(t *testing.T) (*httptest.Server, *inMemRepository, *recordingNotifier) {
	t.Helper()

	repo := newInMemRepository()
	notifier := &recordingNotifier{}
	svc := service.NewService(repo, notifier, "test-secret")
	h := handlers.NewHandler(svc, "test-secret", t.TempDir())

	r := mux.NewRouter()
	r.HandleFunc("/api/register", h.RegisterHandler).Methods("POST")
	r.HandleFunc("/api/login", h.LoginHandler).Methods("POST")
	r.HandleFunc("/api/me", h.JWTMiddleware(h.MeHandler)).Methods("GET")
	r.HandleFunc("/api/bounties", h.ListBountiesHandler).Methods("GET")
	r.HandleFunc("/api/bounties", h.JWTMiddleware(h.CreateBountyHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/apply", h.JWTMiddleware(h.ApplyHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/applications", h.JWTMiddleware(h.ListApplicationsHandler)).Methods("GET")
	r.HandleFunc("/api/bounties/{id}/comments", h.JWTMiddleware(h.CreateCommentHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/comments", h.ListCommentsHandler).Methods("GET")
	r.HandleFunc("/api/bounties/{id}/complete", h.JWTMiddleware(h.CompleteBountyHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/upload", h.JWTMiddleware(h.UploadHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/attachments", h.ListAttachmentsHandler).Methods("GET")
	r.HandleFunc("/api/transactions/me", h.JWTMiddleware(h.MyTransactionsHandler)).Methods("GET")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo, notifier
}

func doJSON(
	t *testing.T,
	method, url, token string,
	body interface{},
	out interface{},
) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func registerUser(t *testing.T, baseURL, username string) (models.User, string) {
	t.Helper()
	var resp struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	code := doJSON(t, http.MethodPost, baseURL+"/api/register", "",
		map[string]string{"username": username, "password": "pass"}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, resp.Token)
	return resp.User, resp.Token
}

func checkConservation(t *testing.T, repo *inMemRepository, userID int) {
	t.Helper()
	user, err := repo.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	transactions, err := repo.ListTransactions(context.Background(), userID)
	require.NoError(t, err)
	sum := 0
	for _, trans := range transactions {
		sum += trans.ChangeAmount
	}
	require.Equal(t, 100+sum, user.Balance,
		"balance must equal starting balance plus the transaction log")
}

func TestE2E_BountyLifecycle(t *testing.T) {
	srv, repo, notifier := newTestServer(t)

	userA, tokenA := registerUser(t, srv.URL, "alice")
	require.Equal(t, 100, userA.Balance)
	userB, tokenB := registerUser(t, srv.URL, "bob")

	var bounty models.Bounty
	code := doJSON(t, http.MethodPost, srv.URL+"/api/bounties", tokenA,
		map[string]interface{}{"title": "fix the build", "description": "CI is red", "reward": 30},
		&bounty)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, models.StatusOpen, bounty.Status)
	require.Equal(t, 30, bounty.Reward)

	var me models.User
	code = doJSON(t, http.MethodGet, srv.URL+"/api/me", tokenA, nil, &me)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 70, me.Balance)

	var bounties []models.Bounty
	code = doJSON(t, http.MethodGet, srv.URL+"/api/bounties", "", nil, &bounties)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, bounties, 1)
	require.Equal(t, "alice", bounties[0].CreatedByName)

	applyURL := fmt.Sprintf("%s/api/bounties/%d/apply", srv.URL, bounty.ID)
	var app models.Application
	code = doJSON(t, http.MethodPost, applyURL, tokenB, nil, &app)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, userB.ID, app.UserID)

	var apps []models.Application
	code = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/bounties/%d/applications", srv.URL, bounty.ID), tokenA, nil, &apps)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, apps, 1)
	require.Equal(t, "bob", apps[0].Username)

	code = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/bounties/%d/comments", srv.URL, bounty.ID), tokenB,
		map[string]string{"message": "on it"}, nil)
	require.Equal(t, http.StatusOK, code)

	var comments []models.Comment
	code = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/bounties/%d/comments", srv.URL, bounty.ID), "", nil, &comments)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, comments, 1)
	require.Equal(t, "on it", comments[0].Message)

	completeURL := fmt.Sprintf("%s/api/bounties/%d/complete", srv.URL, bounty.ID)
	var completed map[string]string
	code = doJSON(t, http.MethodPost, completeURL, tokenA,
		map[string]int{"winnerId": userB.ID}, &completed)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "completed", completed["message"])

	code = doJSON(t, http.MethodGet, srv.URL+"/api/me", tokenB, nil, &me)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 130, me.Balance)

	var errResp struct {
		Error string `json:"error"`
	}
	code = doJSON(t, http.MethodPost, completeURL, tokenA,
		map[string]int{"winnerId": userB.ID}, &errResp)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "not open", errResp.Error)

	code = doJSON(t, http.MethodGet, srv.URL+"/api/me", tokenB, nil, &me)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 130, me.Balance, "reward must be credited exactly once")

	var transactions []models.Transaction
	code = doJSON(t, http.MethodGet, srv.URL+"/api/transactions/me", tokenA, nil, &transactions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, transactions, 1)
	require.Equal(t, -30, transactions[0].ChangeAmount)
	require.Equal(t, models.KindBountyPost, transactions[0].Kind)

	code = doJSON(t, http.MethodGet, srv.URL+"/api/transactions/me", tokenB, nil, &transactions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, transactions, 1)
	require.Equal(t, 30, transactions[0].ChangeAmount)
	require.Equal(t, models.KindBountyAward, transactions[0].Kind)

	checkConservation(t, repo, userA.ID)
	checkConservation(t, repo, userB.ID)

	require.Equal(t,
		[]string{"new_bounty", "new_application", "new_comment", "bounty_completed"},
		notifier.seen())
}

func TestE2E_InsufficientBalance(t *testing.T) {
	srv, repo, notifier := newTestServer(t)

	userA, tokenA := registerUser(t, srv.URL, "alice")

	var errResp struct {
		Error string `json:"error"`
	}
	code := doJSON(t, http.MethodPost, srv.URL+"/api/bounties", tokenA,
		map[string]interface{}{"title": "too rich", "reward": 150}, &errResp)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "insufficient balance", errResp.Error)

	var me models.User
	code = doJSON(t, http.MethodGet, srv.URL+"/api/me", tokenA, nil, &me)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 100, me.Balance)

	var bounties []models.Bounty
	code = doJSON(t, http.MethodGet, srv.URL+"/api/bounties", "", nil, &bounties)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, bounties)

	var transactions []models.Transaction
	code = doJSON(t, http.MethodGet, srv.URL+"/api/transactions/me", tokenA, nil, &transactions)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, transactions)

	checkConservation(t, repo, userA.ID)
	require.Empty(t, notifier.seen())
}

func TestE2E_NonCreatorCannotComplete(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, tokenA := registerUser(t, srv.URL, "alice")
	userB, tokenB := registerUser(t, srv.URL, "bob")

	var bounty models.Bounty
	code := doJSON(t, http.MethodPost, srv.URL+"/api/bounties", tokenA,
		map[string]interface{}{"title": "job", "reward": 10}, &bounty)
	require.Equal(t, http.StatusOK, code)

	var errResp struct {
		Error string `json:"error"`
	}
	code = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/bounties/%d/complete", srv.URL, bounty.ID), tokenB,
		map[string]int{"winnerId": userB.ID}, &errResp)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "only creator can complete", errResp.Error)

	var bounties []models.Bounty
	code = doJSON(t, http.MethodGet, srv.URL+"/api/bounties", "", nil, &bounties)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, models.StatusOpen, bounties[0].Status)
}

func TestE2E_DuplicateUsername(t *testing.T) {
	srv, _, _ := newTestServer(t)

	registerUser(t, srv.URL, "alice")

	var errResp struct {
		Error string `json:"error"`
	}
	code := doJSON(t, http.MethodPost, srv.URL+"/api/register", "",
		map[string]string{"username": "alice", "password": "pass"}, &errResp)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "username exists", errResp.Error)
}

func TestE2E_AuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var errResp struct {
		Error string `json:"error"`
	}
	code := doJSON(t, http.MethodGet, srv.URL+"/api/me", "", nil, &errResp)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "No token", errResp.Error)

	code = doJSON(t, http.MethodGet, srv.URL+"/api/me", "not-a-token", nil, &errResp)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid token", errResp.Error)
}

func TestE2E_Upload(t *testing.T) {
	srv, _, notifier := newTestServer(t)

	_, tokenA := registerUser(t, srv.URL, "alice")

	var bounty models.Bounty
	code := doJSON(t, http.MethodPost, srv.URL+"/api/bounties", tokenA,
		map[string]interface{}{"title": "job", "reward": 10}, &bounty)
	require.Equal(t, http.StatusOK, code)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "result.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("done"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/bounties/%d/upload", srv.URL, bounty.ID), &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenA)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var att models.Attachment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&att))
	require.Equal(t, "result.txt", att.Filename)

	var attachments []models.Attachment
	code = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/bounties/%d/attachments", srv.URL, bounty.ID), "", nil, &attachments)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, attachments, 1)

	require.Contains(t, notifier.seen(), "new_attachment")
}
