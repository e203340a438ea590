// Package store persists user notification preferences.
//
// Put replaces the whole record. There is no compare-and-swap: two concurrent
// read-modify-write cycles on the same user race and the last Put wins.
package store

import (
	"context"
	"errors"

	"user-notifier/internal/model"
)

var (
	// ErrNotFound is returned by Get when the user has no record.
	ErrNotFound = errors.New("preferences not found")

	ErrInvalidRecord = errors.New("preferences record has no user id")
)

// PreferenceStore is a key-value store of preferences keyed by user id.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*model.UserPreferences, error)
	Put(ctx context.Context, prefs *model.UserPreferences) error
}

func validate(prefs *model.UserPreferences) error {
	if prefs == nil || prefs.UserID == "" {
		return ErrInvalidRecord
	}
	return nil
}
