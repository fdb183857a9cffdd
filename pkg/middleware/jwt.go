package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 管理コンソールのスタッフIDをワーカーとページの間で伝播するために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// StaffID は認証済みスタッフの一意識別子。
	StaffID string `json:"staff_id"`
}

// GenerateJWT はスタッフ情報からJWTトークンを生成する。
// 管理コンソール側の認証基盤が発行するトークンと同じ形式。開発・テスト用。
func GenerateJWT(secret, staffID string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chatrelay-console",
		},
		StaffID: staffID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ValidateToken はJWTトークン文字列を検証し、クレームを返す。
// WebSocketハンドシェイクのようにAuthorizationヘッダーを使えない経路で使用する。
func ValidateToken(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("トークンが無効です")
	}
	return claims, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "staff_id" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := ValidateToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set("staff_id", claims.StaffID)
		c.Next()
	}
}

// GetStaffID はGinコンテキストからスタッフIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetStaffID(c *gin.Context) string {
	staffID, _ := c.Get("staff_id")
	if id, ok := staffID.(string); ok {
		return id
	}
	return ""
}
