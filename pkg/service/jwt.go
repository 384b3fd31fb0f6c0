package service

import (
	"errors"
	"time"

	apperrors "helpdesk-system/pkg/errors"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JwtCustomClaim несёт только идентификатор принципала. Роль в токен не кладётся
// и из токена не читается: её всегда определяет RoleResolver по справочнику.
type JwtCustomClaim struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateToken(userID string) (string, error)
	ValidateToken(tokenString string) (*JwtCustomClaim, error)
}

type jwtService struct {
	secretKey      string
	accessTokenExp time.Duration
	logger         *zap.Logger
}

func NewJWTService(secretKey string, accessTokenExp time.Duration, logger *zap.Logger) JWTService {
	return &jwtService{
		secretKey:      secretKey,
		accessTokenExp: accessTokenExp,
		logger:         logger,
	}
}

// GenerateToken используется для локального запуска и тестов; выпуском токенов в бою занимается внешний IdP.
func (s *jwtService) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := &JwtCustomClaim{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenExp)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(s.secretKey))
}

func (s *jwtService) ValidateToken(tokenString string) (*JwtCustomClaim, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JwtCustomClaim{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(s.secretKey), nil
		default:
			return nil, apperrors.ErrInvalidSigningMethod
		}
	})
	if err != nil {
		s.logger.Debug("Ошибка парсинга или проверки подписи токена", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*JwtCustomClaim)
	if !ok || !token.Valid || claims.UserID == "" {
		s.logger.Warn("Токен невалиден или не удалось извлечь claims")
		return nil, apperrors.ErrInvalidToken
	}

	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(time.Now().Add(time.Minute)) {
		return nil, apperrors.ErrTokenNotYetValid
	}

	return claims, nil
}
