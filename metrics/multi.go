package metrics

import "github.com/yourusername/burstfence/core"

// Multi fans each event out to every non-nil observer, in order.
func Multi(observers ...core.Observer) core.Observer {
	var live []core.Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return core.ObserverFunc(func(e core.Event) {
		for _, o := range live {
			o.Observe(e)
		}
	})
}
