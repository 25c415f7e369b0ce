package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

// TokenConfig configures access token validation. Tokens are issued by an external identity provider.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience []string
	Leeway   time.Duration
}

// TokenService validates HS256 bearer tokens.
type TokenService struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(cfg.Audience[0]))
	}
	return &TokenService{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// ValidateToken parses and validates an access token returning the claims with a normalised role.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	role, ok := models.ParseRole(string(claims.Role))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role")
	}
	claims.Role = role
	return claims, nil
}
