// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package tenantconfig

import (
	"sync"
)

// EventKind names a lifecycle signal.
type EventKind int

const (
	EventPreCache EventKind = iota
	EventCached
	EventPreUpdate
	EventUpdate
	EventPreClear
)

func (k EventKind) String() string {
	switch k {
	case EventPreCache:
		return "preCache"
	case EventCached:
		return "cached"
	case EventPreUpdate:
		return "preUpdate"
	case EventUpdate:
		return "update"
	case EventPreClear:
		return "preClear"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Tenant is empty for a full cache
// refresh and is the global admin alias for the global layer.
type Event struct {
	Kind   EventKind
	Tenant string
}

type observers struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

// subscribe registers fn and returns a function removing it.
func (o *observers) subscribe(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscription{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// emit calls subscribers synchronously in registration order.
func (o *observers) emit(kind EventKind, tenant string) {
	o.mu.RLock()
	subs := o.subs
	o.mu.RUnlock()
	ev := Event{Kind: kind, Tenant: tenant}
	for _, s := range subs {
		s.fn(ev)
	}
}
