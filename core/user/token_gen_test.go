package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	gen := newTokenGenerator("secret", 3*24*time.Hour)

	now := time.Now()
	usr := User{
		ID:        "5f0c7e1b2a9d4c3e8f6a1b2c3d4e5f60",
		Name:      "Formations Dupont",
		Email:     "contact@dupont.fr",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken, err := gen.makeToken(usr)
	if err != nil {
		t.Fatalf("makeToken() error = %v", err)
	}

	// generate an expired token
	late := gen
	late.now = func() time.Time { return time.Now().Add(-(gen.timeout + 24*time.Hour)) }
	expiredToken, _ := late.makeToken(usr)

	// a new login invalidates previous tokens
	loggedIn := usr
	loggedIn.LastLogin = now.Add(time.Minute)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "used after login", usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
