package library

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// AuthenticateMember verifies the member's password.
func (c *Catalog) AuthenticateMember(ctx context.Context, memberID, password string) error {
	m, err := c.store.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if m.PasswordHash == "" {
		return fmt.Errorf("member %s has no password set", m.MembershipID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return fmt.Errorf("invalid password for member %s", m.MembershipID)
	}
	return nil
}

// ResetMemberPassword replaces the member's password hash.
func (c *Catalog) ResetMemberPassword(ctx context.Context, memberID, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, func(tx Tx) error {
		m, err := tx.GetMember(memberID)
		if err != nil {
			return err
		}
		m.PasswordHash = hash
		return tx.UpdateMember(m)
	})
}
