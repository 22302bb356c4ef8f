package scan

import "go.uber.org/zap"

// Effects plays the celebration (sound, confetti) for a win. An Effects
// value is acquired when a ticket reaches the board and closed when the
// ticket leaves it or the session ends.
type Effects interface {
	// Celebrate is called with the session state after a winning
	// toggle. It must not block.
	Celebrate(State)
	Close() error
}

// EffectsFunc acquires the effects for one completed ticket.
type EffectsFunc func() (Effects, error)

type nopEffects struct{}

func (nopEffects) Celebrate(State) {}
func (nopEffects) Close() error    { return nil }

// acquireEffectsLocked is a no-op when effects are already held.
func (o *Orchestrator) acquireEffectsLocked() {
	if o.effects != nil {
		return
	}
	if o.cfg.Effects == nil {
		o.effects = nopEffects{}
		return
	}
	fx, err := o.cfg.Effects()
	if err != nil {
		o.logger.Warn("win effects unavailable", zap.Error(err))
		fx = nopEffects{}
	}
	o.effects = fx
}

func (o *Orchestrator) releaseEffectsLocked() {
	if o.effects == nil {
		return
	}
	if err := o.effects.Close(); err != nil {
		o.logger.Warn("release win effects", zap.Error(err))
	}
	o.effects = nil
}
