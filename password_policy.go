package identity

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PasswordPolicy is the strength rule set applied to every new password.
//
// Character classes are ASCII: a lowercase letter is a-z, an uppercase
// letter A-Z, a digit 0-9, and a symbol is any rune outside [A-Za-z0-9].
// Length is counted in runes.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireLower     bool
	RequireUpper     bool
	RequireDigit     bool
	RequireSymbol    bool
	ForbidWhitespace bool
	// ForbidIdentifier rejects passwords that contain the account identifier,
	// compared case-insensitively after trimming.
	ForbidIdentifier bool
	// EnforceOnRegister applies the composition and identifier rules to the
	// password supplied at registration.
	EnforceOnRegister bool
}

// DefaultPasswordPolicy returns 8 to 64 runes with all four classes, no
// whitespace, and no embedded identifier.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:         8,
		MaxLength:         64,
		RequireLower:      true,
		RequireUpper:      true,
		RequireDigit:      true,
		RequireSymbol:     true,
		ForbidWhitespace:  true,
		ForbidIdentifier:  true,
		EnforceOnRegister: true,
	}
}

// Check applies the composition rules and then the identifier rule. The
// reuse rule needs a hasher and lives on Engine.CheckPasswordStrength.
func (p PasswordPolicy) Check(password, identifier string) error {
	if err := p.CheckComposition(password); err != nil {
		return err
	}
	return p.CheckIdentifier(password, identifier)
}

// CheckComposition enforces length, character classes and whitespace.
func (p PasswordPolicy) CheckComposition(password string) error {
	if !utf8.ValidString(password) {
		return weakPassword("password must be valid UTF-8")
	}

	n := utf8.RuneCountInString(password)
	if n < p.MinLength || (p.MaxLength > 0 && n > p.MaxLength) {
		return weakPassword("password length is out of range")
	}

	var lower, upper, digit, symbol, space bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case unicode.IsSpace(r):
			space = true
		default:
			symbol = true
		}
	}

	switch {
	case p.ForbidWhitespace && space:
		return weakPassword("password must not contain whitespace")
	case p.RequireLower && !lower:
		return weakPassword("password needs a lowercase letter")
	case p.RequireUpper && !upper:
		return weakPassword("password needs an uppercase letter")
	case p.RequireDigit && !digit:
		return weakPassword("password needs a digit")
	case p.RequireSymbol && !symbol:
		return weakPassword("password needs a special character")
	}
	return nil
}

// registerMinLocalPart is the shortest email local part that registration
// treats as guessable. Mailbox names like "a" in "a@x.com" would otherwise
// reject almost every first password.
const registerMinLocalPart = 3

// CheckIdentifier rejects a password containing identifier or, for an email,
// its local part of any length.
func (p PasswordPolicy) CheckIdentifier(password, identifier string) error {
	return p.checkIdentifier(password, identifier, 1)
}

// CheckRegistration applies the composition rules and the identifier rule
// with the registration allowance for short local parts.
func (p PasswordPolicy) CheckRegistration(password, identifier string) error {
	if err := p.CheckComposition(password); err != nil {
		return err
	}
	return p.checkIdentifier(password, identifier, registerMinLocalPart)
}

func (p PasswordPolicy) checkIdentifier(password, identifier string, minLocal int) error {
	if !p.ForbidIdentifier {
		return nil
	}
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if ident == "" {
		return nil
	}

	lowered := strings.ToLower(password)
	if strings.Contains(lowered, ident) {
		return weakPassword("password must not contain your identifier")
	}
	if at := strings.LastIndex(ident, "@"); at >= minLocal {
		if strings.Contains(lowered, ident[:at]) {
			return weakPassword("password must not contain your identifier")
		}
	}
	return nil
}

func (p PasswordPolicy) validate() error {
	if p.MinLength < 1 {
		return errors.New("PasswordPolicy MinLength must be >= 1")
	}
	if p.MaxLength != 0 && p.MaxLength < p.MinLength {
		return errors.New("PasswordPolicy MaxLength must be 0 or >= MinLength")
	}
	return nil
}

func weakPassword(message string) error {
	return newError(KindWeakPassword, message)
}
