package controller

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"dealforge/config"
	"dealforge/models"
	"dealforge/utils"
)

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty"`
}

var (
	googleOAuthConfig *oauth2.Config
	googleOAuthOnce   sync.Once
)

// oauthConfig builds the Google OAuth client lazily so config is loaded
// before the first use.
func oauthConfig() *oauth2.Config {
	googleOAuthOnce.Do(func() {
		googleOAuthConfig = &oauth2.Config{
			ClientID:     config.AppConfig.GoogleOAuth.ClientID,
			ClientSecret: config.AppConfig.GoogleOAuth.ClientSecret,
			RedirectURL:  config.AppConfig.GoogleOAuth.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	})
	return googleOAuthConfig
}

func generateStateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GoogleOAuth starts the sign-in flow with a CSRF state cookie.
func GoogleOAuth(c *fiber.Ctx) error {
	state, err := generateStateToken()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate state token",
		})
	}

	cookie := new(fiber.Cookie)
	cookie.Name = "oauth_state"
	cookie.Value = state
	cookie.Expires = time.Now().Add(10 * time.Minute)
	cookie.HTTPOnly = true
	cookie.Secure = true
	cookie.SameSite = "Lax"
	c.Cookie(cookie)

	url := oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline)
	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

// GoogleOAuthCallback finishes the flow. Sign-in is restricted to the
// configured workspace domain; anyone else is rejected before a user row
// is created.
func GoogleOAuthCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	cookieState := c.Cookies("oauth_state")

	if state == "" || cookieState == "" || state != cookieState {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid state parameter",
		})
	}
	c.ClearCookie("oauth_state")

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Authorization code not provided",
		})
	}

	token, err := oauthConfig().Exchange(context.Background(), code)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to exchange token: " + err.Error(),
		})
	}

	client := oauthConfig().Client(context.Background(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get user info: " + err.Error(),
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Google API error: " + string(body),
		})
	}

	var googleUser struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to parse user info: " + err.Error(),
		})
	}

	if googleUser.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Google account email is required",
		})
	}

	if domain := config.AppConfig.AllowedEmailDomain; domain != "" {
		if !strings.HasSuffix(strings.ToLower(googleUser.Email), "@"+strings.ToLower(domain)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Sign-in is restricted to the " + domain + " workspace",
			})
		}
	}

	var user models.User
	err = config.DB.Where("google_id = ?", googleUser.ID).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Database error: " + err.Error(),
			})
		}
		// Fall back to email match for accounts created before Google IDs
		// were recorded.
		err = config.DB.Where("email = ?", googleUser.Email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				Email:     googleUser.Email,
				Name:      googleUser.Name,
				AvatarURL: googleUser.Picture,
				GoogleID:  googleUser.ID,
				Role:      models.RoleAnalyst,
				IsActive:  true,
			}
			if err := config.DB.Create(&user).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to create user: " + err.Error(),
				})
			}
		} else if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Database error: " + err.Error(),
			})
		}
	}

	if !user.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Account is not active",
		})
	}

	updates := map[string]interface{}{}
	if user.GoogleID != googleUser.ID {
		updates["google_id"] = googleUser.ID
	}
	if user.AvatarURL != googleUser.Picture {
		updates["avatar_url"] = googleUser.Picture
	}
	if user.Name == "" && googleUser.Name != "" {
		updates["name"] = googleUser.Name
	}
	if len(updates) > 0 {
		if err := config.DB.Model(&user).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update user: " + err.Error(),
			})
		}
	}

	accessToken, refreshToken, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate tokens: " + err.Error(),
		})
	}

	setAuthCookies(c, accessToken, refreshToken)

	return c.JSON(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         &user,
	})
}

func setAuthCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	accessCookie := new(fiber.Cookie)
	accessCookie.Name = "access_token"
	accessCookie.Value = accessToken
	accessCookie.Expires = time.Now().Add(15 * time.Minute)
	accessCookie.HTTPOnly = true
	accessCookie.Secure = true
	accessCookie.SameSite = "Lax"
	c.Cookie(accessCookie)

	refreshCookie := new(fiber.Cookie)
	refreshCookie.Name = "refresh_token"
	refreshCookie.Value = refreshToken
	refreshCookie.Expires = time.Now().Add(7 * 24 * time.Hour)
	refreshCookie.HTTPOnly = true
	refreshCookie.Secure = true
	refreshCookie.SameSite = "Lax"
	c.Cookie(refreshCookie)
}

// RefreshToken exchanges a refresh token (body or cookie) for a new pair.
func RefreshToken(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	_ = c.BodyParser(&req)
	token := req.RefreshToken
	if token == "" {
		token = c.Cookies("refresh_token")
	}
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Refresh token required",
		})
	}

	accessToken, refreshToken, err := utils.RefreshTokens(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	setAuthCookies(c, accessToken, refreshToken)
	return c.JSON(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

// Logout revokes the refresh token and clears the auth cookies.
func Logout(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	_ = c.BodyParser(&req)
	token := req.RefreshToken
	if token == "" {
		token = c.Cookies("refresh_token")
	}
	if token != "" {
		if err := utils.RevokeRefreshToken(token); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to revoke token",
			})
		}
	}

	c.ClearCookie("access_token")
	c.ClearCookie("refresh_token")
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func GetCurrentUser(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(user)
}
