package session

import (
	"context"

	"github.com/jrsteele09/go-habit-session/authapi"
	"github.com/jrsteele09/go-habit-session/internal/errors"
	"github.com/jrsteele09/go-habit-session/users"
)

// UpdateUser patches the profile of the signed in user and merges the backend's
// answer into the current user. When updates race, an answer that arrives after the
// answer to a later update is dropped.
func (m *Manager) UpdateUser(ctx context.Context, update users.Update) error {
	m.mu.Lock()
	if !m.isAuthenticated || m.user == nil || m.user.ID == 0 {
		m.errMsg = MsgUpdateFailed
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrNotAuthenticated, "[Manager.UpdateUser]")
	}
	userID := m.user.ID
	m.updateSeq++
	seq := m.updateSeq
	m.mu.Unlock()

	var patch users.Patch
	err := m.sessionCall(ctx, "UpdateUser", MsgUpdateFailed, func(ctx context.Context) error {
		var err error
		patch, err = m.api.UpdateUser(ctx, userID, update)
		return err
	}, func() error {
		if m.user == nil {
			return errors.ErrNotAuthenticated
		}
		if seq < m.appliedUpdate {
			m.log.Debug().Uint64("seq", seq).Msg("dropping stale profile update")
			return nil
		}
		merged, err := m.user.Apply(patch)
		if err != nil {
			return err
		}
		m.user = &merged
		m.appliedUpdate = seq
		return nil
	})
	if err != nil {
		return err
	}

	m.persist(ctx)
	return nil
}

// ChangePassword changes the password of the signed in user.
func (m *Manager) ChangePassword(ctx context.Context, passwordData authapi.ChangePasswordData) error {
	m.mu.Lock()
	if !m.isAuthenticated {
		m.errMsg = MsgChangePasswordFailed
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrNotAuthenticated, "[Manager.ChangePassword]")
	}
	m.mu.Unlock()

	return m.sessionCall(ctx, "ChangePassword", MsgChangePasswordFailed, func(ctx context.Context) error {
		_, err := m.api.ChangePassword(ctx, passwordData)
		return err
	}, nil)
}

// ResetPassword asks the backend to email a reset link. No session is needed.
func (m *Manager) ResetPassword(ctx context.Context, resetData authapi.PasswordResetData) error {
	return m.anonymousCall(ctx, "ResetPassword", MsgResetPasswordFailed, func(ctx context.Context) error {
		_, err := m.api.ResetPassword(ctx, resetData)
		return err
	})
}

// SetNewPassword completes a reset with the link's uid and token. No session is needed.
func (m *Manager) SetNewPassword(ctx context.Context, newPasswordData authapi.NewPasswordData) error {
	return m.anonymousCall(ctx, "SetNewPassword", MsgSetPasswordFailed, func(ctx context.Context) error {
		_, err := m.api.SetNewPassword(ctx, newPasswordData)
		return err
	})
}

// VerifyEmail confirms an email address. No session is needed.
func (m *Manager) VerifyEmail(ctx context.Context, verificationData authapi.EmailVerificationData) error {
	return m.anonymousCall(ctx, "VerifyEmail", MsgVerifyEmailFailed, func(ctx context.Context) error {
		_, err := m.api.VerifyEmail(ctx, verificationData)
		return err
	})
}

// sessionCall runs call with a refreshed session. apply, when set, runs under the
// lock after a successful call, unless the session was replaced in the meantime.
func (m *Manager) sessionCall(ctx context.Context, op, fallback string, call func(context.Context) error, apply func() error) error {
	m.mu.Lock()
	m.loading++
	m.errMsg = ""
	m.mu.Unlock()
	defer m.endLoading()

	if !m.RefreshAuth(ctx) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.phase == PhaseExpired {
			return errors.Wrapf(errors.ErrSessionExpired, "[Manager.%s]", op)
		}
		m.errMsg = fallback
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "[Manager.%s]", op)
		}
		return errors.Wrapf(errors.ErrNotAuthenticated, "[Manager.%s]", op)
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	callCtx, cancel := m.callContext(ctx)
	err := call(callCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// The retrying transport may have found the session dead while the call was in flight.
		if gen != m.generation && m.phase == PhaseExpired {
			return errors.Wrapf(errors.ErrSessionExpired, "[Manager.%s]", op)
		}
		m.errMsg = messageFor(err, fallback)
		return errors.Wrapf(err, "[Manager.%s]", op)
	}
	if apply == nil {
		return nil
	}
	if gen != m.generation {
		m.log.Debug().Str("op", op).Msg("session replaced during call, result dropped")
		return nil
	}
	if err := apply(); err != nil {
		m.errMsg = fallback
		return errors.Wrapf(err, "[Manager.%s]", op)
	}
	return nil
}

func (m *Manager) anonymousCall(ctx context.Context, op, fallback string, call func(context.Context) error) error {
	m.mu.Lock()
	m.loading++
	m.errMsg = ""
	m.mu.Unlock()
	defer m.endLoading()

	callCtx, cancel := m.callContext(ctx)
	err := call(callCtx)
	cancel()
	if err == nil {
		return nil
	}

	m.mu.Lock()
	m.errMsg = messageFor(err, fallback)
	m.mu.Unlock()
	return errors.Wrapf(err, "[Manager.%s]", op)
}

func (m *Manager) endLoading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading--
}
