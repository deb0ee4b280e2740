package macro

import "github.com/nerrad567/macro-autopilot/internal/vessel"

// sasGuard keeps the vessel's SAS group off while attitude nodes steer and
// remembers the state it found so the run can hand it back.
type sasGuard struct {
	controlled bool
	wasOn      bool
}

func (g *sasGuard) block(c *Context) {
	if g.controlled || c.Vessel == nil || !c.Vessel.Has(vessel.CapActionGroups) {
		return
	}
	on, ok := c.Telemetry.ActionGroups[vessel.GroupSAS]
	if !ok {
		return
	}
	g.controlled = true
	g.wasOn = on
	if !on {
		return
	}
	if err := c.Vessel.Apply(vessel.Controls{ActionGroups: map[string]bool{vessel.GroupSAS: false}}); err != nil {
		c.log().Warn("could not disable SAS", "error", err)
	}
}

func (g *sasGuard) release(v vessel.Vessel, log Logger) {
	if !g.controlled {
		return
	}
	g.controlled = false
	if !g.wasOn || v == nil {
		return
	}
	if err := v.Apply(vessel.Controls{ActionGroups: map[string]bool{vessel.GroupSAS: true}}); err != nil {
		log.Warn("could not restore SAS", "error", err)
	}
}
