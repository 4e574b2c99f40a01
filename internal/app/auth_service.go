package app

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"medichat/internal/model"
	"medichat/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid login or password")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

const passwordMinLen = 8

// UserStore is the account persistence the auth service needs.
type UserStore interface {
	Create(user *model.User) error
	FindByID(id uint) (*model.User, error)
	FindByLogin(login string) (*model.User, error)
	Taken(username, email string) (usernameTaken, emailTaken bool, err error)
	TouchLastLogin(id uint) error
}

// AuthService registers patient accounts and mints the tokens the chatbot
// routes require. It holds no clinical state.
type AuthService struct {
	users         UserStore
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

type LoginInput struct {
	Login    string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(users UserStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	fullName := strings.Join(strings.Fields(input.FullName), " ")

	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 letters, digits or underscores", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if err := checkPassword(input.Password, username); err != nil {
		return nil, err
	}

	usernameTaken, emailTaken, err := s.users.Taken(username, email)
	if err != nil {
		return nil, err
	}
	if usernameTaken {
		return nil, ErrUsernameExists
	}
	if emailTaken {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Login authenticates by username or email.
func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	login := strings.TrimSpace(input.Login)
	if login == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.FindByLogin(login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}

	_ = s.users.TouchLastLogin(user.ID)

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Profile returns the account behind a verified token.
func (s *AuthService) Profile(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.users.FindByID(id)
}

// checkPassword rejects passwords that are too short, identical to the
// username, or all one character class.
func checkPassword(password, username string) error {
	if len(password) < passwordMinLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, passwordMinLen)
	}
	if strings.EqualFold(password, username) {
		return fmt.Errorf("%w: password must differ from username", ErrInvalidInput)
	}
	var hasLetter, hasOther bool
	for _, r := range password {
		if unicode.IsLetter(r) {
			hasLetter = true
		} else {
			hasOther = true
		}
	}
	if !hasLetter || !hasOther {
		return fmt.Errorf("%w: password needs letters and at least one digit or symbol", ErrInvalidInput)
	}
	return nil
}
