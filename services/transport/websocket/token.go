package wstransport

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

const tokenAudience = "ulms-verifier"

// Claims identify the student behind a verification connection.
type Claims struct {
	jwt.StandardClaims
	ExamID string `json:"exam_id,omitempty"`
}

// NewToken signs an HS256 token for the verification handshake.
func NewToken(secret, studentID, examID, issuer string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   studentID,
			Audience:  tokenAudience,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		ExamID: examID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing channel token")
	}
	return signed, nil
}

// ParseToken verifies a token issued by NewToken.
func ParseToken(secret, token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing channel token")
	}
	if !claims.VerifyAudience(tokenAudience, true) {
		return nil, errors.New("token audience mismatch")
	}
	return claims, nil
}
