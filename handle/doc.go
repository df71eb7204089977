// Package handle provides the slot tables that back every token the bridge
// hands to the host.
//
// A Handle packs a slot index and a generation. Handle 0 is reserved and
// always invalid; a removed slot is reused with a new generation, so a stale
// handle from the host never resolves to the slot's next occupant.
//
//	t := handle.New[*instance]()
//	h, _ := t.Insert(inst)
//	inst, ok := t.Get(h)   // ok until Remove(h)
package handle
