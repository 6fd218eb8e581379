package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// TokenValidator Bearer Token 验证器
type TokenValidator interface {
	ValidateToken(token string) (*Identity, error)
}

// Claims 认证服务签发的 JWT 声明
// 兼容 Keycloak 的 realm_access.roles 与扁平的 roles
type Claims struct {
	Email             string   `json:"email"`
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	Roles             []string `json:"roles"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// JWKSValidator 基于 JWKS 公钥的 Token 验证器
type JWKSValidator struct {
	issuer     string
	jwksURL    string
	jwksCache  *sync.Map
	httpClient *http.Client
}

// NewJWKSValidator 创建验证器,jwksURL 为空时使用 Keycloak 默认路径
func NewJWKSValidator(issuer string, jwksURL string) *JWKSValidator {
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("%s/protocol/openid-connect/certs", strings.TrimRight(issuer, "/"))
	}
	return &JWKSValidator{
		issuer:     issuer,
		jwksURL:    jwksURL,
		jwksCache:  &sync.Map{},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Issuer 返回 Issuer URL
func (v *JWKSValidator) Issuer() string {
	return v.issuer
}

// ValidateToken 验证 JWT 并返回调用方身份
func (v *JWKSValidator) ValidateToken(tokenString string) (*Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing kid in token header")
		}
		return v.GetPublicKey(kid)
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	roles := append([]string{}, claims.RealmAccess.Roles...)
	roles = append(roles, claims.Roles...)
	return &Identity{
		UserID:   claims.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Name:     claims.Name,
		Roles:    roles,
		Token:    tokenString,
	}, nil
}

// GetPublicKey 获取公钥 (从 JWKS 或缓存)
func (v *JWKSValidator) GetPublicKey(kid string) (*rsa.PublicKey, error) {
	if cached, ok := v.jwksCache.Load(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}

	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	for _, key := range jwks.Keys {
		if key.Kid != kid || key.Kty != "RSA" {
			continue
		}
		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		v.jwksCache.Store(kid, publicKey)
		return publicKey, nil
	}

	return nil, fmt.Errorf("key not found in JWKS: %s", kid)
}

// parseRSAPublicKey 解析 RSA 公钥
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// unauthorized 返回 401,错误体与业务错误保持一致
func unauthorized(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"detail":     detail,
		"error_code": "UNAUTHORIZED",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// AuthMiddleware Bearer JWT 认证中间件
func AuthMiddleware(validator TokenValidator, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		identity, err := validator.ValidateToken(token)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("path", c.Request.URL.Path).Debug("token rejected")
			}
			unauthorized(c, "invalid token")
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// DevAuthMiddleware 关闭认证时使用: 从 X-User-ID / X-User-Roles 头构造身份,仅用于本地开发
func DevAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := &Identity{UserID: "dev-user", Username: "dev-user", Roles: []string{RoleAdmin}}
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			identity.UserID = userID
			identity.Username = userID
			identity.Roles = nil
		}
		if roles := c.GetHeader("X-User-Roles"); roles != "" {
			identity.Roles = nil
			for _, r := range strings.Split(roles, ",") {
				if r = strings.TrimSpace(r); r != "" {
					identity.Roles = append(identity.Roles, r)
				}
			}
		}
		setIdentity(c, identity)
		c.Next()
	}
}
