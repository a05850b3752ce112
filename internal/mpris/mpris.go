//go:build linux

package mpris

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/llehouerou/scrobd/internal/playback"
)

const (
	objectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	playerIface = "org.mpris.MediaPlayer2.Player"
	propsIface  = "org.freedesktop.DBus.Properties"
	busIface    = "org.freedesktop.DBus"

	signalBufferSize = 32
	eventBufferSize  = 16
)

// Source watches every MPRIS player on the session bus and emits an event
// whenever a player's status or track changes.
type Source struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	events  chan playback.Event
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger

	// owners maps unique connection names (":1.42") to MPRIS bus names.
	owners  map[string]string
	tracker *tracker
}

// NewSource connects to the session bus and starts watching players whose
// bus-name suffix does not start with one of ignore.
func NewSource(logger *slog.Logger, ignore []string) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("watch properties: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchSender(busIface),
		dbus.WithMatchInterface(busIface),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("watch name owners: %w", err)
	}

	s := &Source{
		conn:    conn,
		signals: make(chan *dbus.Signal, signalBufferSize),
		events:  make(chan playback.Event, eventBufferSize),
		done:    make(chan struct{}),
		logger:  logger,
		owners:  make(map[string]string),
		tracker: newTracker(ignore),
	}
	conn.Signal(s.signals)

	initial := s.discover()
	go s.loop(initial)
	return s, nil
}

// Events implements playback.Source.
func (s *Source) Events() <-chan playback.Event {
	return s.events
}

// Close disconnects from the bus.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// discover registers players already on the bus and returns events for the
// ones currently playing.
func (s *Source) discover() []playback.Event {
	var names []string
	if err := s.conn.BusObject().Call(busIface+".ListNames", 0).Store(&names); err != nil {
		s.logger.Warn("list bus names failed", "error", err)
		return nil
	}

	var initial []playback.Event
	for _, name := range names {
		if !strings.HasPrefix(name, busPrefix) || s.tracker.ignored(name) {
			continue
		}
		var owner string
		if err := s.conn.BusObject().Call(busIface+".GetNameOwner", 0, name).Store(&owner); err != nil {
			s.logger.Debug("get name owner failed", "name", name, "error", err)
			continue
		}
		s.owners[owner] = name

		props := make(map[string]dbus.Variant, 2)
		obj := s.conn.Object(name, objectPath)
		for _, prop := range []string{propStatus, propMetadata} {
			v, err := obj.GetProperty(playerIface + "." + prop)
			if err != nil {
				s.logger.Debug("read player property failed", "name", name, "property", prop, "error", err)
				continue
			}
			props[prop] = v
		}
		if ev, ok := s.tracker.update(name, props); ok && ev.State == playback.StatePlaying {
			initial = append(initial, ev)
		}
		s.logger.Debug("found player", "name", name)
	}
	return initial
}

func (s *Source) loop(initial []playback.Event) {
	defer close(s.events)

	for _, ev := range initial {
		if !s.emit(ev) {
			return
		}
	}

	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			ev, ok := s.handle(sig)
			if ok && !s.emit(ev) {
				return
			}
		}
	}
}

func (s *Source) emit(ev playback.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Source) handle(sig *dbus.Signal) (playback.Event, bool) {
	switch sig.Name {
	case propsIface + ".PropertiesChanged":
		if len(sig.Body) < 2 {
			return playback.Event{}, false
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if iface != playerIface || changed == nil {
			return playback.Event{}, false
		}
		name, ok := s.owners[sig.Sender]
		if !ok {
			s.logger.Debug("properties from unknown sender", "sender", sig.Sender)
			return playback.Event{}, false
		}
		return s.tracker.update(name, changed)

	case busIface + ".NameOwnerChanged":
		if len(sig.Body) < 3 {
			return playback.Event{}, false
		}
		name, _ := sig.Body[0].(string)
		oldOwner, _ := sig.Body[1].(string)
		newOwner, _ := sig.Body[2].(string)
		if !strings.HasPrefix(name, busPrefix) {
			return playback.Event{}, false
		}
		if oldOwner != "" {
			delete(s.owners, oldOwner)
		}
		if newOwner == "" {
			s.logger.Debug("player left", "name", name)
			return s.tracker.remove(name)
		}
		s.owners[newOwner] = name
		s.logger.Debug("player joined", "name", name)
	}
	return playback.Event{}, false
}
