package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/feeded/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.users {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(context.Context) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origUsr, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// only save set fields
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = usr.PasswordHash
	}
	if usr.Name != "" {
		origUsr.Name = usr.Name
	}
	if usr.Email != "" {
		origUsr.Email = usr.Email
	}
	if !usr.LastLogin.IsZero() {
		origUsr.LastLogin = usr.LastLogin
	}
	origUsr.IsActive = usr.IsActive
	origUsr.UpdatedAt = usr.UpdatedAt
	return *origUsr, nil
}
