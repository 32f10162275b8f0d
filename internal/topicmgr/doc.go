// Package topicmgr keeps the authoritative record of known pub/sub topics and
// when each one was last used.
//
// Four core topics are always present and can never be evicted:
//
//	notification, inventory, order, system
//
// Every other topic is dynamic. It appears the first time something publishes
// to it or subscribes to it, and disappears only when the cleanup sweep finds
// it idle past the configured threshold with no live subscribers.
//
// Usage:
//
//	reg := topicmgr.NewRegistry()
//	if err := reg.Register("promo_alerts"); err != nil {
//		return err
//	}
//	reg.Touch("promo_alerts")
//
//	active := reg.List()
//	status := reg.Status("promo_alerts")
//
// Names are normalized (trimmed, lower-cased) on every entry point, so
// "Promo_Alerts " and "promo_alerts" refer to the same topic.
package topicmgr
