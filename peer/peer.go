// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"log/slog"

	"github.com/crew-foundation/crew/election"
	"github.com/crew-foundation/crew/lib/clock"
	"github.com/crew-foundation/crew/lib/config"
	"github.com/crew-foundation/crew/protocol"
	"github.com/crew-foundation/crew/store"
)

// Options configures a Peer.
type Options struct {
	// InstanceID is the bus-assigned identifier, unique and
	// monotonically increasing across the peer group.
	InstanceID uint64

	// Config is the loaded configuration. Nil means config.Default.
	Config *config.Config

	// Clock supplies timestamps. Timers are scheduled by the runtime
	// through effects, so only Now is used here. Nil means Real.
	Clock clock.Clock

	// Logger receives structured diagnostics. Nil means slog.Default.
	Logger *slog.Logger

	// Events, when non-nil, receives the Authority's JSON-lines event
	// log entries (status changes and delivered messages).
	Events *slog.Logger
}

// Peer is one instance of the subsystem: the election coordinator,
// the Authority-side state store, and the Follower-side cache, driven
// by a single-threaded event loop. HandleEvent never blocks and never
// touches the host; all host interaction comes back as effects.
type Peer struct {
	instanceID uint64
	logger     *slog.Logger
	events     *slog.Logger
	clock      clock.Clock
	cfg        *config.Config

	coordinator *election.Coordinator
	store       *store.Store

	// cache is the Follower view, replaced wholesale by each
	// state-sync broadcast.
	cache []protocol.TabRecord

	// paneIndex maps terminal pane handles to tab positions,
	// refreshed independently of the inventory.
	paneIndex map[uint64]int

	// inventory is the latest host tab snapshot, replayed into the
	// store when this peer becomes the Authority.
	inventory []protocol.TabEntry

	// pendingEnter is the pane awaiting the delayed Enter keystroke
	// after a tell delivery.
	pendingEnter *uint64

	indicators map[protocol.Status]string

	lastDigest [32]byte
	hasDigest  bool
}

// New creates a Peer. Call Start to join the election.
func New(options Options) *Peer {
	cfg := options.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("instance_id", options.InstanceID)
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	indicators := make(map[protocol.Status]string, len(protocol.Statuses))
	for _, status := range protocol.Statuses {
		if override, ok := cfg.StatusIndicators[string(status)]; ok {
			indicators[status] = override
		} else {
			indicators[status] = status.Indicator()
		}
	}

	return &Peer{
		instanceID:  options.InstanceID,
		logger:      logger,
		events:      options.Events,
		clock:       clk,
		cfg:         cfg,
		coordinator: election.New(options.InstanceID, cfg.ElectionTimeout, logger),
		store: store.New(store.Options{
			Pool:              cfg.Names,
			Mode:              cfg.Mode,
			PlaceholderPrefix: cfg.PlaceholderPrefix,
			Logger:            logger,
		}),
		paneIndex:  make(map[uint64]int),
		indicators: indicators,
	}
}

// Role returns this peer's current election role.
func (p *Peer) Role() election.Role { return p.coordinator.Role() }

// Visible returns the tab records this peer would render: the store
// snapshot when Authority, the broadcast cache otherwise.
func (p *Peer) Visible() []protocol.TabRecord {
	if p.coordinator.Role() == election.RoleAuthority {
		return p.store.Snapshot()
	}
	return p.cache
}

// Start joins the election. The returned effects broadcast candidacy
// and arm the election timer.
func (p *Peer) Start() []Effect {
	return p.electionEffects(p.coordinator.StartElection())
}

// HandleEvent processes one event and returns the effects the
// runtime must apply, in order.
func (p *Peer) HandleEvent(event Event) []Effect {
	switch event := event.(type) {
	case EventInventory:
		return p.handleInventory(event.Tabs)
	case EventPaneIndex:
		p.paneIndex = event.Panes
		return nil
	case EventMessage:
		return p.handleMessage(event.Sender, event.Message)
	case EventTimer:
		return p.handleTimer(event.Kind)
	case EventShutdown:
		return p.electionEffects(p.coordinator.Resign(p.store.Snapshot))
	default:
		p.logger.Warn("unhandled event", "event", event)
		return nil
	}
}

func (p *Peer) handleInventory(tabs []protocol.TabEntry) []Effect {
	p.inventory = tabs
	if p.coordinator.Role() != election.RoleAuthority {
		return nil
	}
	renames, changed := p.store.ApplyInventory(tabs)
	effects := renameEffects(renames)
	if changed {
		effects = append(effects, p.broadcastState()...)
	}
	return effects
}

func (p *Peer) handleMessage(sender uint64, message protocol.Message) []Effect {
	switch message := message.(type) {
	case protocol.Ping:
		return p.electionEffects(p.coordinator.HandlePing(message, p.store.Snapshot))

	case protocol.Ack:
		adopted, effects := p.coordinator.HandleAck(message)
		if len(effects) == 0 {
			return nil
		}
		p.cache = adopted
		return append(p.electionEffects(effects), EffectRender{})

	case protocol.Claim:
		yielded, effects := p.coordinator.HandleClaim(message)
		if yielded {
			p.store.Clear()
			p.hasDigest = false
		}
		return p.electionEffects(effects)

	case protocol.Resign:
		return p.electionEffects(p.coordinator.HandleResign(message))

	case protocol.StateSync:
		if sender == p.instanceID || p.coordinator.Role() == election.RoleAuthority {
			return nil
		}
		effects := p.electionEffects(p.coordinator.HandleStateSync())
		p.cache = message.Records
		return append(effects, EffectRender{})

	case protocol.Inventory:
		return p.handleInventory(message.Tabs)

	case protocol.PaneIndex:
		p.paneIndex = message.Panes
		return nil

	case protocol.StatusUpdate:
		if p.coordinator.Role() != election.RoleAuthority {
			return nil
		}
		return p.handleStatusUpdate(sender, message)

	case protocol.StatusQuery:
		if p.coordinator.Role() != election.RoleAuthority {
			return nil
		}
		return p.handleStatusQuery(sender, message)

	case protocol.Tell:
		if p.coordinator.Role() != election.RoleAuthority {
			return nil
		}
		return p.handleTell(sender, message)

	default:
		return nil
	}
}

func (p *Peer) handleTimer(kind TimerKind) []Effect {
	switch kind {
	case TimerElection:
		became, inherited, effects := p.coordinator.HandleTimeout()
		if !became {
			return nil
		}
		out := p.electionEffects(effects)
		if inherited != nil {
			p.store.Replace(inherited)
		}
		if p.inventory != nil {
			renames, _ := p.store.ApplyInventory(p.inventory)
			out = append(out, renameEffects(renames)...)
		}
		return append(out, p.broadcastState()...)

	case TimerTellEnter:
		if p.pendingEnter == nil {
			return nil
		}
		pane := *p.pendingEnter
		p.pendingEnter = nil
		return []Effect{EffectWritePane{Pane: pane, Data: []byte{'\r'}}}

	default:
		return nil
	}
}

// broadcastState publishes the full store snapshot unless its
// deterministic encoding hashes identically to the last broadcast.
// An encoding failure skips the broadcast; the next change retries.
func (p *Peer) broadcastState() []Effect {
	digest, err := p.store.Digest()
	if err != nil {
		p.logger.Error("skipping state broadcast", "error", err)
		return nil
	}
	if p.hasDigest && digest == p.lastDigest {
		return nil
	}
	p.lastDigest = digest
	p.hasDigest = true
	return []Effect{
		EffectPublish{Message: protocol.StateSync{Records: p.store.Snapshot()}},
		EffectRender{},
	}
}

// electionEffects maps coordinator effects onto runtime effects.
func (p *Peer) electionEffects(effects []election.Effect) []Effect {
	out := make([]Effect, 0, len(effects))
	for _, effect := range effects {
		switch effect := effect.(type) {
		case election.Broadcast:
			out = append(out, EffectPublish{Message: effect.Message})
		case election.StartTimer:
			out = append(out, EffectStartTimer{Kind: TimerElection, Timeout: effect.Timeout})
		case election.StopTimer:
			out = append(out, EffectStopTimer{Kind: TimerElection})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func renameEffects(renames []protocol.Rename) []Effect {
	var effects []Effect
	for _, rename := range renames {
		effects = append(effects, EffectRename{TabID: rename.TabID, Name: rename.Name})
	}
	return effects
}

// paneForPosition finds a terminal pane in the tab at position,
// preferring the lowest handle for determinism.
func (p *Peer) paneForPosition(position int) (uint64, bool) {
	var best uint64
	found := false
	for pane, pos := range p.paneIndex {
		if pos != position {
			continue
		}
		if !found || pane < best {
			best = pane
			found = true
		}
	}
	return best, found
}
