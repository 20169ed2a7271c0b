package internal

type Flags uint8

const (
	// FlagStale marks a node whose value may be out of date.
	FlagStale Flags = 1 << iota
	// FlagQueued marks an effect already sitting in the flush queue.
	FlagQueued
	// FlagDisposed marks an inert node; writes are discarded and effects never re-run.
	FlagDisposed
)

// node is the graph bookkeeping shared by signals and computeds.
type node struct {
	rt *Runtime

	flags Flags

	// bumped every time the node's value actually changes
	version uint64

	subsHead *link
	subsTail *link
}

// source is anything a computed can depend on.
type source interface {
	graphNode() *node

	// update brings the source's value current. No-op for signals.
	update()
}

// link is one edge of the dependency graph. It sits in two lists at once:
// the subscriber's dependency list (nextDep) and the dependency's
// subscriber list (prevSub/nextSub).
type link struct {
	dep source
	sub *Computed

	// dep's version at the time the subscriber last used its value
	version uint64

	nextDep *link

	prevSub *link
	nextSub *link
}

func (n *node) addSub(l *link) {
	if n.subsTail == nil {
		n.subsHead = l
		n.subsTail = l
		return
	}

	l.prevSub = n.subsTail
	n.subsTail.nextSub = l
	n.subsTail = l
}

func (n *node) removeSub(l *link) {
	if l.prevSub != nil {
		l.prevSub.nextSub = l.nextSub
	} else {
		n.subsHead = l.nextSub
	}

	if l.nextSub != nil {
		l.nextSub.prevSub = l.prevSub
	} else {
		n.subsTail = l.prevSub
	}

	l.prevSub = nil
	l.nextSub = nil
}

// invalidate marks every transitive subscriber stale and queues affected
// effects. A node already stale is skipped, so each subscriber is flagged
// at most once per write regardless of how many paths reach it.
func (n *node) invalidate() {
	for l := n.subsHead; l != nil; l = l.nextSub {
		c := l.sub

		if c.n.flags&(FlagStale|FlagDisposed) != 0 {
			continue
		}
		c.n.flags |= FlagStale

		if c.isEffect && c.n.flags&FlagQueued == 0 {
			c.n.flags |= FlagQueued
			c.n.rt.enqueue(c)
		}

		c.n.invalidate()
	}
}
