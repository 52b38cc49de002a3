package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"retroim/internal/domain"
)

// UserStore implements the storage collaborator over the users table.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

var _ domain.Storage = (*UserStore)(nil)

// JSON shapes for the opaque detail blobs.
type groupRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsFavorite bool   `json:"is_favorite"`
}

type contactRecord struct {
	UUID            string   `json:"uuid"`
	Name            string   `json:"name"`
	Lists           uint8    `json:"lists"`
	Groups          []string `json:"groups"`
	IsMessengerUser bool     `json:"is_messenger_user"`
}

// Login verifies credentials and returns the account uuid, "" on mismatch.
// Lookup is case-insensitive via the email_lower column.
func (s *UserStore) Login(ctx context.Context, email, password string) (string, error) {
	var id, hashed string
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid, hashed_password FROM users WHERE email_lower = ?`,
		strings.ToLower(email),
	).Scan(&id, &hashed)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("login lookup: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) != nil {
		return "", nil
	}
	return id, nil
}

// GetUUID translates an email to an account uuid, case-insensitively.
func (s *UserStore) GetUUID(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid FROM users WHERE email_lower = ?`,
		strings.ToLower(email),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("uuid lookup: %w", err)
	}
	return id, nil
}

// GetUser loads a head record, or nil when the uuid is unknown.
func (s *UserStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid, email, verified, name, message, media FROM users WHERE uuid = ?`,
		id,
	).Scan(&u.UUID, &u.Email, &u.Verified, &u.Status.Name, &u.Status.Message, &u.Status.Media)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Status.Substatus = domain.SubstatusOffline
	return u, nil
}

// GetDetail loads and decodes the settings/groups/contacts blobs.
func (s *UserStore) GetDetail(ctx context.Context, id string) (*domain.UserDetail, error) {
	var settingsJSON, groupsJSON, contactsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings, groups, contacts FROM users WHERE uuid = ?`,
		id,
	).Scan(&settingsJSON, &groupsJSON, &contactsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan detail: %w", err)
	}

	detail := domain.NewUserDetail()
	if err := json.Unmarshal([]byte(settingsJSON), &detail.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	var groups []groupRecord
	if err := json.Unmarshal([]byte(groupsJSON), &groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	for _, g := range groups {
		detail.Groups[g.ID] = &domain.Group{ID: g.ID, Name: g.Name, IsFavorite: g.IsFavorite}
	}

	var contacts []contactRecord
	if err := json.Unmarshal([]byte(contactsJSON), &contacts); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	for _, c := range contacts {
		ctc := domain.NewContact(c.UUID, c.Name)
		ctc.Lists = domain.Lst(c.Lists)
		ctc.IsMessengerUser = c.IsMessengerUser
		for _, gid := range c.Groups {
			ctc.Groups[gid] = struct{}{}
		}
		detail.Contacts[c.UUID] = ctc
	}
	return detail, nil
}

// SaveBatch writes dirty head+detail pairs in one transaction. Entries with
// a nil detail update head fields only.
func (s *UserStore) SaveBatch(ctx context.Context, entries []domain.BatchEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	headStmt, err := tx.PrepareContext(ctx,
		`UPDATE users SET name = ?, message = ?, media = ?, updated_at = CURRENT_TIMESTAMP WHERE uuid = ?`)
	if err != nil {
		return fmt.Errorf("prepare head update: %w", err)
	}
	defer headStmt.Close()

	detailStmt, err := tx.PrepareContext(ctx,
		`UPDATE users SET settings = ?, groups = ?, contacts = ?, updated_at = CURRENT_TIMESTAMP WHERE uuid = ?`)
	if err != nil {
		return fmt.Errorf("prepare detail update: %w", err)
	}
	defer detailStmt.Close()

	for _, e := range entries {
		u := e.User
		if _, err := headStmt.ExecContext(ctx, u.Status.Name, u.Status.Message, u.Status.Media, u.UUID); err != nil {
			return fmt.Errorf("save head %s: %w", u.UUID, err)
		}
		if e.Detail == nil {
			continue
		}
		settingsJSON, groupsJSON, contactsJSON, err := encodeDetail(e.Detail)
		if err != nil {
			return fmt.Errorf("encode detail %s: %w", u.UUID, err)
		}
		if _, err := detailStmt.ExecContext(ctx, settingsJSON, groupsJSON, contactsJSON, u.UUID); err != nil {
			return fmt.Errorf("save detail %s: %w", u.UUID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func encodeDetail(d *domain.UserDetail) (settings, groups, contacts string, err error) {
	sb, err := json.Marshal(d.Settings)
	if err != nil {
		return "", "", "", err
	}

	grecs := make([]groupRecord, 0, len(d.Groups))
	for _, g := range d.Groups {
		grecs = append(grecs, groupRecord{ID: g.ID, Name: g.Name, IsFavorite: g.IsFavorite})
	}
	gb, err := json.Marshal(grecs)
	if err != nil {
		return "", "", "", err
	}

	crecs := make([]contactRecord, 0, len(d.Contacts))
	for _, c := range d.Contacts {
		gids := make([]string, 0, len(c.Groups))
		for gid := range c.Groups {
			gids = append(gids, gid)
		}
		crecs = append(crecs, contactRecord{
			UUID:            c.UUID,
			Name:            c.Name,
			Lists:           uint8(c.Lists),
			Groups:          gids,
			IsMessengerUser: c.IsMessengerUser,
		})
	}
	cb, err := json.Marshal(crecs)
	if err != nil {
		return "", "", "", err
	}
	return string(sb), string(gb), string(cb), nil
}

// CreateUser provisions an account. Used by the useradd tool and tests;
// online registration stays out of scope.
func (s *UserStore) CreateUser(ctx context.Context, email, password, name string) (*domain.User, error) {
	existing, err := s.GetUUID(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, fmt.Errorf("account %s already exists", email)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		UUID:  uuid.NewString(),
		Email: email,
	}
	u.Status.Name = name

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (uuid, email, email_lower, hashed_password, name) VALUES (?, ?, ?, ?, ?)`,
		u.UUID, email, strings.ToLower(email), string(hashed), name)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}
