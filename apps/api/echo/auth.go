package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
}

type authenticator struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config) authenticator {
	return authenticator{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a authenticator) claims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Name:         usr.Name,
	}
}

// token generates a signed JWT token string representing the user Claims.
func (a authenticator) token(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	ss, err := jwt.NewWithClaims(method, claims).SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// GenerateToken returns a fresh access token for usr.
func GenerateToken(conf *core.Config, usr user.User) (string, error) {
	a := newAuthenticator(conf)
	return a.token(a.claims(usr))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// contextUserMiddleware loads the active user of the token into the context.
func contextUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func (a authenticator) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	return a.token(a.claims(usr, claims.OrigIssuedAt))
}
