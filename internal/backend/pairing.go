package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/credential"
	"github.com/aurora-dispenser/aurora-sync/internal/logging"
)

// PairingState is the device's view of its pairing with the backend.
type PairingState int

const (
	// StateUnpaired means no secret is held; the next EnsurePaired will pair.
	StateUnpaired PairingState = iota
	// StatePaired means a non-empty secret is cached and persisted.
	StatePaired
	// StateConflictUnrecoverable means the backend answered 409 to a pairing
	// request while no secret was stored. EnsurePaired will not try again until
	// Reload, Restore or Forget is called, or the process restarts.
	StateConflictUnrecoverable
)

// String returns the state name used in logs and status output.
func (s PairingState) String() string {
	switch s {
	case StateUnpaired:
		return "unpaired"
	case StatePaired:
		return "paired"
	case StateConflictUnrecoverable:
		return "conflict"
	default:
		return fmt.Sprintf("PairingState(%d)", s)
	}
}

// Pairing owns the device secret for the lifetime of the process.
//
// All access to the cached secret, the state and credential store writes is
// serialized by one mutex, including the pairing request itself, so two
// concurrent callers never pair twice.
type Pairing struct {
	client *Client
	store  credential.Store

	mu          sync.Mutex
	initialized bool
	secret      string
	state       PairingState
	conflict    *SyncError

	onChange func(PairingState)
}

// NewPairing creates a controller. Nothing is read from the store until the
// first call that needs the secret.
func NewPairing(client *Client, store credential.Store) *Pairing {
	return &Pairing{
		client: client,
		store:  store,
		state:  StateUnpaired,
	}
}

// OnStateChange registers fn to be called, without the lock held, after every
// state transition. Set it before the controller is shared.
func (p *Pairing) OnStateChange(fn func(PairingState)) {
	p.onChange = fn
}

// State returns the current pairing state.
func (p *Pairing) State() PairingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Secret returns the cached secret and whether it is non-empty. It never
// touches the store or the network.
func (p *Pairing) Secret() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.secret, p.secret != ""
}

// EnsurePaired makes sure a device secret is available, pairing if needed.
// A cached secret returns nil with no I/O. In StateConflictUnrecoverable the
// stored conflict error is returned without a request.
func (p *Pairing) EnsurePaired(ctx context.Context) error {
	p.mu.Lock()
	from := p.state
	err := p.ensurePairedLocked(ctx)
	to := p.state
	p.mu.Unlock()

	p.notify(from, to)
	return err
}

// PairDevice performs the pairing exchange unless a secret is already held.
// Unlike EnsurePaired it is sent even after a conflict: it is the explicit
// retry an operator runs once the backend record has been reset.
func (p *Pairing) PairDevice(ctx context.Context) error {
	p.mu.Lock()
	from := p.state
	err := p.initLocked()
	if err == nil {
		err = p.pairLocked(ctx)
	}
	to := p.state
	p.mu.Unlock()

	p.notify(from, to)
	return err
}

// Reload re-reads the secret from the store, dropping any cached value and a
// conflict state. Used after the credential file is edited out of band.
func (p *Pairing) Reload() error {
	p.mu.Lock()
	from := p.state
	p.initialized = false
	p.secret = ""
	p.state = StateUnpaired
	p.conflict = nil
	err := p.initLocked()
	to := p.state
	p.mu.Unlock()

	p.notify(from, to)
	return err
}

// Restore persists a secret supplied by an operator and adopts it.
func (p *Pairing) Restore(secret string) error {
	if secret == "" {
		return NewAuthError("cannot restore an empty secret")
	}

	p.mu.Lock()
	from := p.state
	err := p.saveLocked(secret)
	if err == nil {
		p.initialized = true
		p.conflict = nil
		logging.Info("Device secret restored by operator", zap.String("secret", logging.MaskSecret(secret)))
	}
	to := p.state
	p.mu.Unlock()

	p.notify(from, to)
	return err
}

// Forget deletes the persisted secret and returns to StateUnpaired, so the
// next EnsurePaired requests a new pairing.
func (p *Pairing) Forget() error {
	p.mu.Lock()
	from := p.state
	var err error
	if delErr := p.store.Delete(); delErr != nil {
		err = NewPersistenceError("failed to delete device secret", delErr)
	} else {
		p.initialized = true
		p.secret = ""
		p.state = StateUnpaired
		p.conflict = nil
		logging.Info("Device secret forgotten by operator")
	}
	to := p.state
	p.mu.Unlock()

	p.notify(from, to)
	return err
}

func (p *Pairing) ensurePairedLocked(ctx context.Context) error {
	if err := p.initLocked(); err != nil {
		return err
	}
	if p.secret != "" {
		return nil
	}
	if p.state == StateConflictUnrecoverable {
		return p.conflict
	}
	return p.pairLocked(ctx)
}

// initLocked loads the secret once. A failed load leaves the controller
// uninitialized so the next call tries again.
func (p *Pairing) initLocked() error {
	if p.initialized {
		return nil
	}

	secret, err := p.store.Load()
	if err != nil {
		logging.Error("Failed to load device secret", zap.Error(err))
		return NewPersistenceError("failed to load device secret", err)
	}

	p.initialized = true
	p.secret = secret
	if secret != "" {
		p.state = StatePaired
		logging.Info("Loaded device secret from store", zap.String("secret", logging.MaskSecret(secret)))
	} else {
		p.state = StateUnpaired
		logging.Info("No device secret stored; device is unpaired")
	}
	return nil
}

func (p *Pairing) pairLocked(ctx context.Context) error {
	if p.state == StatePaired && p.secret != "" {
		return nil
	}

	url := p.client.endpoints.Pair()
	logging.Info("Pairing device", zap.String("serial", p.client.endpoints.Serial()), zap.String("url", url))

	resp, err := p.client.do(ctx, http.MethodPost, url, nil, nil)
	if err != nil {
		logging.Warn("Pairing request failed", zap.Error(err))
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		secret, err := parsePairResponse(resp.Body)
		if err != nil {
			logging.Warn("Pairing response rejected", zap.Error(err))
			return err
		}
		if err := p.saveLocked(secret); err != nil {
			return err
		}
		logging.Info("Device paired", zap.String("secret", logging.MaskSecret(secret)))
		return nil

	case http.StatusConflict:
		p.state = StateConflictUnrecoverable
		p.conflict = NewConflictError(p.client.endpoints.Serial(), url)
		logging.Error("Pairing conflict: backend already paired this device but no secret is stored",
			zap.String("serial", p.client.endpoints.Serial()),
			zap.String("action", "reset the device pairing on the backend, or restore the secret with 'aurora-sync secret restore'"),
		)
		return p.conflict

	default:
		err := NewProtocolError(resp.StatusCode, fmt.Sprintf("unexpected pairing status code: %d", resp.StatusCode), url)
		logging.Warn("Pairing failed", zap.Error(err))
		return err
	}
}

// saveLocked persists before caching, so a non-empty cached secret always
// matches the store.
func (p *Pairing) saveLocked(secret string) error {
	if err := p.store.Save(secret); err != nil {
		logging.Error("Failed to persist device secret", zap.Error(err))
		return NewPersistenceError("failed to persist device secret", err)
	}
	p.secret = secret
	p.state = StatePaired
	return nil
}

func (p *Pairing) notify(from, to PairingState) {
	if from != to && p.onChange != nil {
		p.onChange(to)
	}
}
