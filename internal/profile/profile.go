// Package profile manages participants, their active mode and stored passwords.
package profile

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/model"
)

const (
	SectionGlobal   = "Global"
	KeyActiveUser   = "ActiveUser"
	KeyActiveMode   = "ActiveMode"
	UserPrefix      = "User_"
	PasswordPrefix  = "Password_"
	keyName         = "Name"
	maxUsernameSize = 10
)

var (
	usernamePattern = regexp.MustCompile(`^\w{1,10}$`)
	pinPattern      = regexp.MustCompile(`^\d{4}$`)
	mixedPattern    = regexp.MustCompile(`^\w{8}$`)
)

var (
	// ErrNoActiveUser is returned when no participant has been activated.
	ErrNoActiveUser = errors.New("no active user; run `keeglog user create <name>` first")
	// ErrNoActiveMode is returned when no password mode has been chosen.
	ErrNoActiveMode = errors.New("no active mode; run `keeglog mode <1|2>` first")
	// ErrUnknownUser is returned for operations on a user that was never created.
	ErrUnknownUser = errors.New("user does not exist")
)

// MissingPasswordError reports that no password is stored for a user and mode.
type MissingPasswordError struct {
	User string
	Mode model.PasswordMode
}

func (e *MissingPasswordError) Error() string {
	return fmt.Sprintf("no password stored for user %s in mode %s; run `keeglog setpass`", e.User, e.Mode)
}

// ValidateUsername checks the username is 1-10 word characters.
func ValidateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("invalid username %q: use only letters, digits and underscores, 1 to %d characters", name, maxUsernameSize)
	}
	return nil
}

// ValidatePassword checks pw against the format required by mode.
func ValidatePassword(mode model.PasswordMode, pw string) error {
	switch mode {
	case model.ModePinFixed4:
		if !pinPattern.MatchString(pw) {
			return fmt.Errorf("password must be exactly 4 digits")
		}
	case model.ModeMixedFixed8:
		if !mixedPattern.MatchString(pw) {
			return fmt.Errorf("password must be exactly 8 letters or digits")
		}
	default:
		return fmt.Errorf("unknown password mode %d", int(mode))
	}
	return nil
}

// CreateUser adds the user section. Creating an existing user is a no-op.
func CreateUser(s config.Store, name string) (created bool, err error) {
	if err := ValidateUsername(name); err != nil {
		return false, err
	}
	if UserExists(s, name) {
		return false, nil
	}
	if err := s.Set(UserPrefix+name, keyName, name); err != nil {
		return false, fmt.Errorf("failed to create user %s: %w", name, err)
	}
	return true, nil
}

// UserExists reports whether a section exists for name.
func UserExists(s config.Store, name string) bool {
	want := UserPrefix + name
	for _, section := range s.Sections() {
		if section == want {
			return true
		}
	}
	return false
}

// ListUsers returns all user names in sorted order.
func ListUsers(s config.Store) []string {
	var users []string
	for _, section := range s.Sections() {
		if name, ok := strings.CutPrefix(section, UserPrefix); ok {
			users = append(users, name)
		}
	}
	sort.Strings(users)
	return users
}

func ActiveUser(s config.Store) (string, error) {
	name, ok := s.Get(SectionGlobal, KeyActiveUser)
	if !ok || name == "" {
		return "", ErrNoActiveUser
	}
	return name, nil
}

// SetActiveUser activates an existing user.
func SetActiveUser(s config.Store, name string) error {
	if !UserExists(s, name) {
		return fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	return s.Set(SectionGlobal, KeyActiveUser, name)
}

func ActiveMode(s config.Store) (model.PasswordMode, error) {
	value, ok := s.Get(SectionGlobal, KeyActiveMode)
	if !ok || value == "" {
		return 0, ErrNoActiveMode
	}
	mode, err := model.ParseMode(value)
	if err != nil {
		return 0, fmt.Errorf("stored active mode: %w", err)
	}
	return mode, nil
}

func SetActiveMode(s config.Store, mode model.PasswordMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown password mode %d", int(mode))
	}
	return s.Set(SectionGlobal, KeyActiveMode, fmt.Sprintf("%d", int(mode)))
}

// Password returns the stored password for user and mode.
func Password(s config.Store, user string, mode model.PasswordMode) (string, error) {
	pw, ok := s.Get(UserPrefix+user, PasswordPrefix+mode.Name())
	if !ok || pw == "" {
		return "", &MissingPasswordError{User: user, Mode: mode}
	}
	return pw, nil
}

// SetPassword validates and stores pw for user and mode.
func SetPassword(s config.Store, user string, mode model.PasswordMode, pw string) error {
	if !UserExists(s, user) {
		return fmt.Errorf("%w: %s", ErrUnknownUser, user)
	}
	if err := ValidatePassword(mode, pw); err != nil {
		return err
	}
	return s.Set(UserPrefix+user, PasswordPrefix+mode.Name(), pw)
}
