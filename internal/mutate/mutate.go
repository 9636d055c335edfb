// Package mutate creates, renames and deletes remote items behind syntax
// validation, the safe-root policy and a confirmation gate.
package mutate

import (
	"context"
	"fmt"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/lister"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/progress"
	"github.com/Ning0612/adbexplorer/internal/session"
	"github.com/Ning0612/adbexplorer/internal/sizecalc"
)

// Confirmer asks the user before a delete
type Confirmer interface {
	// Confirm asks a yes/no question
	Confirm(prompt string) (bool, error)
	// ConfirmTyped requires the user to type expected exactly
	ConfirmTyped(prompt, expected string) (bool, error)
}

// AssumeYes confirms everything (--yes)
type AssumeYes struct{}

func (AssumeYes) Confirm(string) (bool, error)              { return true, nil }
func (AssumeYes) ConfirmTyped(string, string) (bool, error) { return true, nil }

// Mutator runs single-call remote mutations and invalidates the cache lines they touch
type Mutator struct {
	inv   *bridge.Invoker
	sizes *sizecalc.Calculator
	log   logger.Logger
}

// New creates a mutator
func New(inv *bridge.Invoker, sizes *sizecalc.Calculator) *Mutator {
	return &Mutator{inv: inv, sizes: sizes, log: logger.With("component", "mutate")}
}

func (m *Mutator) forget(ctx context.Context, st *session.State, p string) {
	st.Cache.Forget(ctx, p, true, lister.Resolver(m.inv, st))
}

func (m *Mutator) run(ctx context.Context, st *session.State, op, command string) error {
	res := m.inv.Invoke(ctx, st, bridge.Shell(command), bridge.Options{})
	if !res.Success {
		return fmt.Errorf("%s: %w", op, res.Err)
	}
	return nil
}

// Mkdir creates a remote directory and its parents
func (m *Mutator) Mkdir(ctx context.Context, st *session.State, raw string) error {
	p, err := cleanPath(raw)
	if err != nil {
		return err
	}
	if err := CheckPolicy(st.Config, p, true); err != nil {
		return err
	}

	if err := m.run(ctx, st, "mkdir "+p, "mkdir -p "+bridge.Quote(p)); err != nil {
		return err
	}
	m.forget(ctx, st, p)
	m.log.Info("directory created", "path", p)
	return nil
}

// Rename gives a remote item a new name in the same directory and returns its new path
func (m *Mutator) Rename(ctx context.Context, st *session.State, raw, newName string) (string, error) {
	oldPath, err := checkRemovable(st.Config, raw)
	if err != nil {
		return "", err
	}
	if err := ValidateName(newName); err != nil {
		return "", err
	}
	newPath := domain.JoinRemote(dircache.Parent(oldPath), newName)
	if newPath == oldPath {
		return oldPath, nil
	}
	if err := CheckPolicy(st.Config, newPath, false); err != nil {
		return "", err
	}

	err = m.run(ctx, st, "rename "+oldPath, "mv "+bridge.Quote(oldPath)+" "+bridge.Quote(newPath))
	// a failed mv may still have moved part of a tree
	m.forget(ctx, st, oldPath)
	m.forget(ctx, st, newPath)
	if err != nil {
		return "", err
	}
	m.log.Info("item renamed", "path", oldPath, "new_path", newPath)
	return newPath, nil
}

// Delete removes a remote item after confirmation. Directories larger than
// the policy threshold require typing the name when their size can be computed.
func (m *Mutator) Delete(ctx context.Context, st *session.State, e domain.Entry, c Confirmer) error {
	p, err := checkRemovable(st.Config, e.FullPath)
	if err != nil {
		return err
	}

	ok, err := m.confirmDelete(ctx, st, e, p, c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: delete %s", domain.ErrNotConfirmed, p)
	}

	return m.remove(ctx, st, p)
}

func (m *Mutator) confirmDelete(ctx context.Context, st *session.State, e domain.Entry, p string, c Confirmer) (bool, error) {
	if c == nil {
		return false, nil
	}
	if e.IsDirLike() && st.Config.LargeDeleteThreshold > 0 && st.Features.Allows(session.CapDuSb) && m.sizes != nil {
		if size, known := m.sizes.DirSize(ctx, st, p); known && size > st.Config.LargeDeleteThreshold {
			prompt := fmt.Sprintf("%s is %s. Type its name to delete it permanently", p, progress.FormatBytes(size))
			return c.ConfirmTyped(prompt, e.Name)
		}
	}
	return c.Confirm(fmt.Sprintf("Delete %s %s?", e.Kind, p))
}

// RemoveTree deletes a verified move source without asking. The same path
// and policy rules as Delete apply.
func (m *Mutator) RemoveTree(ctx context.Context, st *session.State, raw string) error {
	p, err := checkRemovable(st.Config, raw)
	if err != nil {
		return err
	}
	return m.remove(ctx, st, p)
}

func (m *Mutator) remove(ctx context.Context, st *session.State, p string) error {
	err := m.run(ctx, st, "delete "+p, "rm -rf "+bridge.Quote(p))
	m.forget(ctx, st, p)
	if err != nil {
		return err
	}
	m.log.Info("item deleted", "path", p)
	return nil
}
