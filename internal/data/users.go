package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// User maps to the users collection. It doubles as the profile directory
// record: display name and avatar are what channel participants are
// denormalized from.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	AvatarURL string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Role      Role      `bson:"role" json:"role"`
	Password  string    `bson:"password" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Directory resolves user ids and emails to profile records. Mirrors the
// Store split: a Mongo variant and an in-memory fixture variant.
type Directory interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// UsersStore is the Mongo-backed Directory.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a user document. Password must already be hashed.
func (u *UsersStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := u.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// GetUserByID finds a user by id.
func (u *UsersStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// MemoryDirectory is the fixture Directory used when no Mongo URI is
// configured. Seed users are added at wiring time.
type MemoryDirectory struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]*User
}

// NewMemoryDirectory returns an empty fixture directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

func (d *MemoryDirectory) CreateUser(ctx context.Context, user *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[user.Email]; ok {
		return ErrDuplicate
	}
	cp := *user
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	d.byID[cp.ID] = &cp
	d.byEmail[cp.Email] = &cp
	return nil
}

func (d *MemoryDirectory) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryDirectory) GetUserByID(ctx context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}
